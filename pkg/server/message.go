package server

import (
	stderrors "errors"

	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/state"
)

// Message types.
const (
	// Client to server.
	TypeLoad       = "load"
	TypeHashChange = "hashchange"
	TypeSet        = "set"

	// Server to client.
	TypeState    = "state"
	TypeReplace  = "replace"
	TypeRejected = "rejected"
	TypeError    = "error"
)

// Message is the JSON envelope exchanged with the thin client and returned
// by the HTTP endpoints.
type Message struct {
	Type          string            `json:"type"`
	Href          string            `json:"href,omitempty"`
	Hash          string            `json:"hash,omitempty"`
	Query         state.Values      `json:"query,omitempty"`
	State         eventmap.Snapshot `json:"state,omitempty"`
	Classes       []string          `json:"classes,omitempty"`
	ValidParams   state.Values      `json:"validParams,omitempty"`
	InvalidParams state.Values      `json:"invalidParams,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// resultMessage converts the outcome of a Set call. A nil result with a nil
// error (ignored navigation) yields nil.
func resultMessage(res *state.Result, err error, classes []string) *Message {
	switch {
	case err != nil && res != nil && stderrors.Is(err, state.ErrValidation):
		return &Message{
			Type:          TypeRejected,
			Query:         res.Query,
			State:         res.State,
			ValidParams:   res.ValidParams,
			InvalidParams: res.InvalidParams,
			Error:         err.Error(),
		}
	case err != nil:
		return &Message{Type: TypeError, Error: err.Error()}
	case res == nil:
		return nil
	}
	return &Message{
		Type:        TypeState,
		Query:       res.Query,
		State:       res.State,
		Classes:     classes,
		ValidParams: res.ValidParams,
	}
}
