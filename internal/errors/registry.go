package errors

import "sort"

// Registered error codes.
const (
	CodeValidationFailed = "S001"
	CodeMalformedSpec    = "S002"
	CodeInvalidPattern   = "S003"

	CodeMalformedFragment = "U001"

	CodeConfigNotFound = "C001"
	CodeConfigParse    = "C002"
	CodeConfigInvalid  = "C003"
	CodeConfigWatch    = "C004"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// State Errors (S001-S099)
	// ============================================

	CodeValidationFailed: {
		Category: CategoryValidation,
		Message:  "One or more parameters did not pass validation",
		Detail:   "The whole batch was rejected and nothing was committed. Inspect the invalid parameters to see which keys failed.",
		DocURL:   "https://vango.dev/docs/statekit/errors/S001",
	},
	CodeMalformedSpec: {
		Category: CategorySpec,
		Message:  "Validator is not valid",
		Detail:   "A validator must be a function, a regular expression, a pattern string or a list of allowed values. The key is treated as always valid.",
		DocURL:   "https://vango.dev/docs/statekit/errors/S002",
	},
	CodeInvalidPattern: {
		Category: CategorySpec,
		Message:  "Validator pattern does not compile",
		Detail:   "Pattern strings are anchored as ^(?:pattern)$ and compiled with Go's regexp syntax.",
		DocURL:   "https://vango.dev/docs/statekit/errors/S003",
	},

	// ============================================
	// URL Errors (U001-U099)
	// ============================================

	CodeMalformedFragment: {
		Category: CategoryURL,
		Message:  "URL fragment could not be decoded",
		Detail:   "The fragment must be a query string of key=value pairs separated by '&'.",
		DocURL:   "https://vango.dev/docs/statekit/errors/U001",
	},

	// ============================================
	// Config Errors (C001-C099)
	// ============================================

	CodeConfigNotFound: {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "statekit looks for statekit.json, statekit.yaml or statekit.yml.",
		DocURL:   "https://vango.dev/docs/statekit/errors/C001",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Configuration file could not be parsed",
		DocURL:   "https://vango.dev/docs/statekit/errors/C002",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Configuration is invalid",
		DocURL:   "https://vango.dev/docs/statekit/errors/C003",
	},
	CodeConfigWatch: {
		Category: CategoryConfig,
		Message:  "Configuration file could not be watched",
		DocURL:   "https://vango.dev/docs/statekit/errors/C004",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
