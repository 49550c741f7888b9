// Package validate holds the per-key rules a state store runs before it
// commits a change: an ordered list of validators, at most one parser and at
// most one default.
//
// Validators may be registered in several shapes. Each shape is resolved once,
// at registration, into a Validator of a fixed Kind:
//
//	func(value any, state eventmap.Snapshot) bool                         KindFunc
//	func(value any) bool, func(value string) bool                         KindFunc
//	func(ctx, value any, state eventmap.Snapshot) <-chan bool             KindDeferred
//	func(ctx, value any, state eventmap.Snapshot) bool                    KindDeferred
//	*regexp.Regexp, or a pattern string anchored as ^(?:pattern)$         KindPattern
//	[]string, []any or any other slice of allowed values                  KindOneOf
//	anything else                                                         KindUnknown
//
// KindUnknown validators accept every value; registering one logs a
// diagnostic and returns a non-fatal error.
//
// Rules.Run parses every key of a query, runs every validator of every key
// concurrently and waits for all of them before deciding. A key is valid
// only if all its validators report true; invalid keys fall back to their
// current value in Outcome.Valid and are reported in Outcome.Invalid.
package validate
