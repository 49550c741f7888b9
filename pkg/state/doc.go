// Package state is a validated, observable key/value store for sharing UI
// state between components that hold no references to each other.
//
// Every external change goes through the same pipeline:
//
//	Idle → Parsing → Validating (all validators, all keys) → Committing → Idle (notify)
//	                                                       ↘ Rejecting  → Idle (no commit)
//
// Commit is all-or-nothing across a batch. When any key fails, nothing is
// written and Set returns an error matching ErrValidation together with a
// Result whose ValidParams hold the rolled-back values and whose
// InvalidParams hold the rejected ones.
//
// Usage:
//
//	m := state.New()
//	m.AddConfig(map[string]validate.Spec{
//	    "year": {Validator: `\d{4}`, Default: "2017"},
//	    "lang": {Validator: []string{"en", "fr"}},
//	})
//
//	sub := m.OnParamChange([]string{"year"}, func(changes state.Changes, newState, oldState eventmap.Snapshot) {
//	    fmt.Println(changes["year"].OldValue, "->", changes["year"].NewValue)
//	})
//	defer sub.Destroy()
//
//	if _, err := m.Set(ctx, state.Values{"year": "2018"}); errors.Is(err, state.ErrValidation) {
//	    ...
//	}
//
// Subscribers are called synchronously, in registration order, before Set
// returns. Concurrent commits are delivered, and written to the URL, one at
// a time in commit order. They must not call Set on the same Manager synchronously; start a
// goroutine instead.
package state
