package state

import (
	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/eventmap"
)

// Values is a batch of key/value pairs.
type Values = map[string]any

// ErrValidation matches every error returned for a rejected batch.
var ErrValidation error = errors.New(errors.CodeValidationFailed)

// Outcome distinguishes committed batches from rejected ones.
type Outcome int

const (
	Committed Outcome = iota
	Rejected
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == Committed {
		return "committed"
	}
	return "rejected"
}

// Result describes what happened to one Set call.
type Result struct {
	Outcome Outcome

	// Query is the batch as the caller passed it.
	Query Values

	// ValidParams holds the parsed value of every accepted key. For a
	// rejected batch, keys that failed hold their pre-call value.
	ValidParams Values

	// InvalidParams holds the rejected values. Empty when committed.
	InvalidParams Values

	// State is the snapshot after the batch. For a rejected batch it is the
	// unchanged current state.
	State eventmap.Snapshot
}

// Change is the before and after value of one key.
type Change = eventmap.Change

// Changes maps keys to their change.
type Changes = eventmap.Changes
