package validate

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/eventmap"
)

// Kind identifies the shape a validator was registered with.
type Kind int

const (
	KindFunc Kind = iota
	KindDeferred
	KindPattern
	KindOneOf
	KindUnknown
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindDeferred:
		return "deferred"
	case KindPattern:
		return "pattern"
	case KindOneOf:
		return "oneOf"
	default:
		return "unknown"
	}
}

// Func is a synchronous validator.
type Func func(value any, state eventmap.Snapshot) bool

// DeferredFunc is an asynchronous validator. The result is the first value
// received from the channel; a channel closed without a value rejects.
type DeferredFunc func(ctx context.Context, value any, state eventmap.Snapshot) <-chan bool

// Validator is a predicate gating whether a value may be committed.
type Validator struct {
	kind   Kind
	source any
	check  DeferredFunc
}

// Kind returns the shape the validator was built from.
func (v Validator) Kind() Kind {
	return v.kind
}

// Check starts the validator and returns a channel that yields its verdict.
func (v Validator) Check(ctx context.Context, value any, state eventmap.Snapshot) <-chan bool {
	if v.check == nil {
		return resolved(true)
	}
	return v.check(ctx, value, state)
}

// String describes the validator for diagnostics.
func (v Validator) String() string {
	switch v.kind {
	case KindPattern, KindOneOf, KindUnknown:
		return fmt.Sprintf("%s(%v)", v.kind, v.source)
	}
	return v.kind.String()
}

// Predicate wraps a synchronous function.
func Predicate(fn Func) Validator {
	return Validator{
		kind:   KindFunc,
		source: fn,
		check: func(_ context.Context, value any, state eventmap.Snapshot) <-chan bool {
			return resolved(fn(value, state))
		},
	}
}

// Deferred wraps an asynchronous function.
func Deferred(fn DeferredFunc) Validator {
	return Validator{kind: KindDeferred, source: fn, check: fn}
}

// Blocking wraps a function that may block until it has a verdict. It runs
// in its own goroutine.
func Blocking(fn func(ctx context.Context, value any, state eventmap.Snapshot) bool) Validator {
	return Deferred(func(ctx context.Context, value any, state eventmap.Snapshot) <-chan bool {
		ch := make(chan bool, 1)
		go func() {
			defer close(ch)
			ch <- fn(ctx, value, state)
		}()
		return ch
	})
}

// Regexp validates the string form of a value against re.
func Regexp(re *regexp.Regexp) Validator {
	return Validator{
		kind:   KindPattern,
		source: re,
		check: func(_ context.Context, value any, _ eventmap.Snapshot) <-chan bool {
			return resolved(re.MatchString(Stringify(value)))
		},
	}
}

// Pattern compiles pattern anchored at both ends.
func Pattern(pattern string) (Validator, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return Validator{}, errors.New(errors.CodeInvalidPattern).Wrap(err)
	}
	return Regexp(re), nil
}

// OneOf accepts values equal to one of allowed.
func OneOf(allowed ...any) Validator {
	return Validator{
		kind:   KindOneOf,
		source: allowed,
		check: func(_ context.Context, value any, _ eventmap.Snapshot) <-chan bool {
			return resolved(lo.ContainsBy(allowed, func(a any) bool {
				return eventmap.Equal(a, value)
			}))
		},
	}
}

func unknown(source any) Validator {
	return Validator{kind: KindUnknown, source: source}
}

// Wrap resolves a registered validator shape into a Validator. Unrecognised
// shapes and bad pattern strings yield an always-true validator together
// with a non-nil error describing the problem.
func Wrap(spec any) (Validator, error) {
	switch fn := spec.(type) {
	case Validator:
		return fn, nil
	case Func:
		return Predicate(fn), nil
	case func(any, eventmap.Snapshot) bool:
		return Predicate(fn), nil
	case func(any) bool:
		return Predicate(func(value any, _ eventmap.Snapshot) bool { return fn(value) }), nil
	case func(string) bool:
		return Predicate(func(value any, _ eventmap.Snapshot) bool { return fn(Stringify(value)) }), nil
	case DeferredFunc:
		return Deferred(fn), nil
	case func(context.Context, any, eventmap.Snapshot) <-chan bool:
		return Deferred(fn), nil
	case func(context.Context, any, eventmap.Snapshot) bool:
		return Blocking(fn), nil
	case *regexp.Regexp:
		if fn == nil {
			break
		}
		return Regexp(fn), nil
	case string:
		v, err := Pattern(fn)
		if err != nil {
			return unknown(spec), err
		}
		return v, nil
	case []any:
		return OneOf(fn...), nil
	}

	if rv := reflect.ValueOf(spec); rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		allowed := make([]any, rv.Len())
		for i := range allowed {
			allowed[i] = rv.Index(i).Interface()
		}
		return OneOf(allowed...), nil
	}

	return unknown(spec), errors.New(errors.CodeMalformedSpec).
		WithDetail(fmt.Sprintf("validator of type %T is not supported; assuming true for all values", spec))
}

// Stringify renders a value the way pattern validators see it: sequences
// are joined with commas and nil is the empty string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	}
	if eventmap.IsSequence(value) {
		rv := reflect.ValueOf(value)
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(value)
}

func resolved(ok bool) <-chan bool {
	ch := make(chan bool, 1)
	ch <- ok
	close(ch)
	return ch
}
