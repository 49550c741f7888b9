package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/validate"
)

// NoURLKey is the config key that disables URL writes when truthy.
const NoURLKey = "nourl"

// URLWriter pushes committed state somewhere outside the store, normally the
// URL fragment. It receives only the keys of the batch just committed.
type URLWriter interface {
	WriteState(ctx context.Context, validated Values)
}

// Observer is told about every Set call. Observers are used for metrics and
// tracing; they must not block.
type Observer interface {
	// SetStarted may return a derived context that is passed to validators
	// and to SetFinished.
	SetStarted(ctx context.Context, query Values) context.Context
	SetFinished(ctx context.Context, res *Result, err error, elapsed time.Duration)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConfig sets the config store consulted for NoURLKey.
func WithConfig(cs *configstore.Store) Option {
	return func(m *Manager) {
		m.config = cs
	}
}

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(m *Manager) {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
}

// Manager owns one observable map and the rules that gate writes to it.
type Manager struct {
	params    *eventmap.Map
	rules     *validate.Rules
	config    *configstore.Store
	observers []Observer
	logger    *slog.Logger

	// commitMu orders a commit with its URL write.
	commitMu sync.Mutex

	urlMu sync.RWMutex
	url   URLWriter
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.params = eventmap.New(eventmap.WithLogger(m.logger))
	m.rules = validate.NewRules(validate.WithLogger(m.logger))
	return m
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the process-wide Manager, created on first use and wired
// to configstore.Default().
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = New(WithConfig(configstore.Default()))
	})
	return defaultManager
}

// BindURL sets the writer called after every successful commit.
func (m *Manager) BindURL(w URLWriter) {
	m.urlMu.Lock()
	defer m.urlMu.Unlock()
	m.url = w
}

// AddConfig registers validators, parsers and defaults. Validators
// accumulate per key; the last parser and default win. The returned error
// lists malformed validators, which were registered as always-true.
func (m *Manager) AddConfig(specs map[string]validate.Spec) error {
	return m.rules.Add(specs)
}

// Defaults returns the registered default values.
func (m *Manager) Defaults() Values {
	return m.rules.Defaults()
}

// Get returns the value for key, or nil.
func (m *Manager) Get(key string) any {
	return m.params.Get(key)
}

// GetAll returns the current snapshot.
func (m *Manager) GetAll() eventmap.Snapshot {
	return m.params.GetAll()
}

// SetParam is Set for a single key.
func (m *Manager) SetParam(ctx context.Context, key string, value any) (*Result, error) {
	return m.Set(ctx, Values{key: value})
}

// Set parses and validates query and commits it if every key passes. It
// blocks until every validator has reported; there is no timeout.
func (m *Manager) Set(ctx context.Context, query Values) (*Result, error) {
	start := time.Now()
	for _, obs := range m.observers {
		ctx = obs.SetStarted(ctx, query)
	}

	res, err := m.set(ctx, query)

	elapsed := time.Since(start)
	for _, obs := range m.observers {
		obs.SetFinished(ctx, res, err, elapsed)
	}
	return res, err
}

func (m *Manager) set(ctx context.Context, query Values) (*Result, error) {
	outcome := m.rules.Run(ctx, query, m.params.GetAll())

	res := &Result{
		Query:         query,
		ValidParams:   outcome.Valid,
		InvalidParams: outcome.Invalid,
	}

	if !outcome.OK() {
		res.Outcome = Rejected
		res.State = m.params.GetAll()
		err := errors.New(errors.CodeValidationFailed).Wrap(outcome.Err())
		m.logger.Error("state: one or more parameters did not pass validation",
			"query", query,
			"invalid", outcome.Invalid,
			"error", err,
		)
		return res, err
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.params.Merge(outcome.Valid, true)
	res.Outcome = Committed
	res.State = m.params.GetAll()

	if !m.urlDisabled() {
		m.urlMu.RLock()
		w := m.url
		m.urlMu.RUnlock()
		if w != nil {
			w.WriteState(ctx, outcome.Valid)
		}
	}
	return res, nil
}

// Seed writes values without validation or notification. It is used to
// initialise the store from the URL before anything subscribes.
func (m *Manager) Seed(values Values) {
	m.params.Merge(values, false)
}

// ApplyDefaults sets, through the normal pipeline, every key of values that
// currently has no value.
func (m *Manager) ApplyDefaults(ctx context.Context, values Values) (*Result, error) {
	current := m.params.GetAll()
	missing := Values{}
	for k, v := range values {
		if cur, ok := current[k]; !ok || isEmpty(cur) {
			missing[k] = v
		}
	}
	return m.Set(ctx, missing)
}

// Delete removes keys and notifies delete subscribers once per key.
func (m *Manager) Delete(keys ...string) {
	for _, k := range keys {
		m.params.Del(k, true)
	}
}

// Reset removes every key. Subscribers of the clear event are notified
// unless notify is false.
func (m *Manager) Reset(notify bool) {
	m.params.Clear(notify)
}

// OnChange subscribes to every committed change. The callback is invoked
// once immediately with the current state and an empty prior state.
func (m *Manager) OnChange(cb eventmap.Callback) *eventmap.Subscription {
	return m.params.On(eventmap.EventSet, cb)
}

// OnDelete subscribes to key deletions.
func (m *Manager) OnDelete(cb eventmap.Callback) *eventmap.Subscription {
	return m.params.On(eventmap.EventDelete, cb)
}

// OnParamChange subscribes to changes of keys only. The callback is skipped
// for notifications in which none of keys changed.
func (m *Manager) OnParamChange(keys []string, cb func(changes Changes, newState, oldState eventmap.Snapshot)) *eventmap.Subscription {
	return m.OnChange(func(_ eventmap.Event, newState, oldState eventmap.Snapshot) {
		if changes := eventmap.Diff(keys, newState, oldState); changes != nil {
			cb(changes, newState, oldState)
		}
	})
}

func (m *Manager) urlDisabled() bool {
	return m.config != nil && m.config.Bool(NoURLKey)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return eventmap.IsSequence(v) && eventmap.Equal(v, []any{})
}
