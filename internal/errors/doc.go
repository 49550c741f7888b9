// Package errors provides structured, coded errors for statekit.
//
// Every error carries a stable code (e.g. "S001") that maps to a short
// message, a longer explanation and a documentation link. Errors are
// grouped into categories:
//   - validation: a state change was rejected by one or more validators
//   - spec: a validator, parser or default was registered in a shape the
//     store does not understand
//   - url: a URL fragment could not be decoded
//   - config: a configuration file could not be found, parsed or validated
//
// # Usage
//
//	err := errors.New(errors.CodeConfigParse).
//	    WithLocation("statekit.yaml", 4, 0).
//	    Wrap(yamlErr)
//
//	fmt.Println(err.Format())
//
// Errors compare by code, so callers can match a whole class of failures:
//
//	if stderrors.Is(err, errors.New(errors.CodeValidationFailed)) { ... }
package errors
