package validate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/vango-dev/statekit/pkg/eventmap"
	"go.uber.org/multierr"
)

// Parser normalises a raw input (usually a URL string) into the shape
// stored for a key.
type Parser func(raw any, state eventmap.Snapshot) any

// Spec is the per-key configuration passed to Rules.Add.
type Spec struct {
	// Validator is appended to the key's validator list. nil adds nothing.
	Validator any

	// Validators are appended after Validator, in order.
	Validators []any

	// Parser replaces any previously registered parser when non-nil.
	Parser Parser

	// Default replaces any previously registered default when non-nil.
	Default any
}

// KeyError reports one key that failed validation.
type KeyError struct {
	Key   string
	Value any
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s: invalid value %q", e.Key, Stringify(e.Value))
}

// Outcome is the result of running a query through the rules.
type Outcome struct {
	// Valid holds the parsed value of every key that passed and the current
	// value of every key that failed.
	Valid map[string]any

	// Invalid holds the parsed value of every key that failed.
	Invalid map[string]any
}

// OK reports whether every key passed.
func (o *Outcome) OK() bool {
	return len(o.Invalid) == 0
}

// Err returns the failures combined into one error, or nil.
func (o *Outcome) Err() error {
	var err error
	for _, key := range eventmap.Snapshot(o.Invalid).Keys() {
		err = multierr.Append(err, &KeyError{Key: key, Value: o.Invalid[key]})
	}
	return err
}

// RulesOption configures Rules.
type RulesOption func(*Rules)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(logger *slog.Logger) RulesOption {
	return func(r *Rules) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Rules is the registry of validators, parsers and defaults for a store.
// It is safe for concurrent use.
type Rules struct {
	mu         sync.RWMutex
	validators map[string][]Validator
	parsers    map[string]Parser
	defaults   map[string]any
	logger     *slog.Logger
}

// NewRules creates an empty registry.
func NewRules(opts ...RulesOption) *Rules {
	r := &Rules{
		validators: make(map[string][]Validator),
		parsers:    make(map[string]Parser),
		defaults:   make(map[string]any),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers specs. Validators accumulate per key across calls; the last
// non-nil parser and default win. Malformed validators are registered as
// always-true, logged, and reported in the returned error; the error never
// means that registration was aborted.
func (r *Rules) Add(specs map[string]Spec) error {
	var errs error

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range sortedKeys(specs) {
		spec := specs[key]
		shapes := spec.Validators
		if spec.Validator != nil {
			shapes = append([]any{spec.Validator}, shapes...)
		}
		for _, shape := range shapes {
			v, err := Wrap(shape)
			if err != nil {
				r.logger.Warn("validate: validator is not valid, assuming true for all values",
					"key", key,
					"type", fmt.Sprintf("%T", shape),
					"error", err,
				)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			}
			r.validators[key] = append(r.validators[key], v)
		}
		if _, ok := r.validators[key]; !ok {
			r.validators[key] = nil
		}
		if spec.Parser != nil {
			r.parsers[key] = spec.Parser
		}
		if spec.Default != nil {
			r.defaults[key] = spec.Default
		}
	}
	return errs
}

// Validators returns a copy of the validators registered for key.
func (r *Rules) Validators(key string) []Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Validator(nil), r.validators[key]...)
}

// Parser returns the parser registered for key.
func (r *Rules) Parser(key string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[key]
	return p, ok
}

// Defaults returns a copy of the registered defaults.
func (r *Rules) Defaults() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		out[k] = v
	}
	return out
}

// Keys returns every key that has rules registered, sorted.
func (r *Rules) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.validators)
}

// Run parses and validates query against current. Every validator of every
// key runs concurrently; Run returns once all of them have reported. There
// is no cancellation: ctx is handed to validators, which may honour it.
func (r *Rules) Run(ctx context.Context, query map[string]any, current eventmap.Snapshot) *Outcome {
	type job struct {
		key     string
		parsed  any
		failed  bool
		results []bool
	}

	keys := sortedKeys(query)
	jobs := make([]*job, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		j := &job{key: key}
		jobs[i] = j

		parsed, err := r.parse(key, query[key], current)
		if err != nil {
			r.logger.Error("validate: parser panicked", "key", key, "error", err)
			j.parsed, j.failed = query[key], true
			continue
		}
		j.parsed = parsed

		validators := r.Validators(key)
		j.results = make([]bool, len(validators))
		for n, v := range validators {
			wg.Add(1)
			go func(n int, v Validator) {
				defer wg.Done()
				j.results[n] = r.await(ctx, key, v, parsed, current)
			}(n, v)
		}
	}
	wg.Wait()

	out := &Outcome{
		Valid:   make(map[string]any, len(jobs)),
		Invalid: make(map[string]any),
	}
	for _, j := range jobs {
		ok := !j.failed
		for _, res := range j.results {
			ok = ok && res
		}
		if ok {
			out.Valid[j.key] = j.parsed
			continue
		}
		out.Invalid[j.key] = j.parsed
		out.Valid[j.key] = current[j.key]
	}
	return out
}

func (r *Rules) parse(key string, raw any, current eventmap.Snapshot) (parsed any, err error) {
	p, ok := r.Parser(key)
	if !ok {
		return raw, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return p(raw, current), nil
}

// await blocks until v reports. A panicking validator rejects.
func (r *Rules) await(ctx context.Context, key string, v Validator, value any, current eventmap.Snapshot) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("validate: validator panicked",
				"key", key,
				"kind", v.Kind().String(),
				"panic", fmt.Sprint(rec),
			)
			ok = false
		}
	}()
	res, received := <-v.Check(ctx, value, current)
	return received && res
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
