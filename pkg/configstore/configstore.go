// Package configstore holds configuration values that components share at
// runtime, such as the switch that disables URL writes.
//
// A Store is a thin layer over an eventmap.Map: every Set merges into the
// existing values and fires a single change notification.
package configstore

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/vango-dev/statekit/pkg/eventmap"
)

// Store is a shared, observable configuration map.
type Store struct {
	props *eventmap.Map
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{props: eventmap.New(eventmap.WithLogger(logger))}
}

var (
	defaultStore     *Store
	defaultStoreOnce sync.Once
)

// Default returns the process-wide Store.
func Default() *Store {
	defaultStoreOnce.Do(func() {
		defaultStore = New(nil)
	})
	return defaultStore
}

// Get returns the value for key, or nil.
func (s *Store) Get(key string) any {
	return s.props.Get(key)
}

// GetAll returns every value.
func (s *Store) GetAll() eventmap.Snapshot {
	return s.props.GetAll()
}

// Set stores one value.
func (s *Store) Set(key string, value any) {
	s.SetAll(map[string]any{key: value})
}

// SetAll merges values into the store and notifies once.
func (s *Store) SetAll(values map[string]any) {
	merged := s.props.GetAll().Clone()
	for k, v := range values {
		merged[k] = v
	}
	s.props.Replace(merged, true)
}

// Reset removes every value without notifying.
func (s *Store) Reset() {
	s.props.Clear(false)
}

// OnChange subscribes to every change. The callback is invoked once
// immediately with the current values.
func (s *Store) OnChange(cb eventmap.Callback) *eventmap.Subscription {
	return s.props.On(eventmap.EventSet, cb)
}

// OnPropertyChange subscribes to changes of keys only.
func (s *Store) OnPropertyChange(keys []string, cb func(changes eventmap.Changes, newConfig, oldConfig eventmap.Snapshot)) *eventmap.Subscription {
	return s.OnChange(func(_ eventmap.Event, newConfig, oldConfig eventmap.Snapshot) {
		if changes := eventmap.Diff(keys, newConfig, oldConfig); changes != nil {
			cb(changes, newConfig, oldConfig)
		}
	})
}

// Bool reports whether the value for key is set to something true. Strings
// are parsed with strconv.ParseBool; other non-empty strings count as true.
func (s *Store) Bool(key string) bool {
	return Truthy(s.Get(key))
}

// Truthy reports whether v counts as "on".
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		if val == "" {
			return false
		}
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return true
	case int:
		return val != 0
	case float64:
		return val != 0
	}
	return true
}

// Split turns a delimited string or a sequence into a list of non-empty
// strings.
func Split(v any, delim string) []string {
	var parts []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, delim)
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		parts = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
