// Package cssclass derives CSS class names from state values.
//
// The config key "stateCss" lists, "|"-delimited, the state keys to watch.
// For each watched key with a value, the Projector keeps one class
// "key--value" per value (one per element for sequences), with every
// non-word character replaced by "_":
//
//	stateCss = "brand|array"
//	brand = "gmc", array = ["is", "array"]
//	Classes() = ["brand__gmc", "array__is", "array__array"]
package cssclass

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"slices"
	"sync"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/eventmap"
)

// ConfigKey is the config store key listing the watched state keys.
const ConfigKey = "stateCss"

// Delimiter separates state keys in ConfigKey.
const Delimiter = "|"

// Source is the part of state.Manager a Projector reads.
type Source interface {
	GetAll() eventmap.Snapshot
	OnParamChange(keys []string, cb func(changes eventmap.Changes, newState, oldState eventmap.Snapshot)) *eventmap.Subscription
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// OnUpdate registers fn to be called with the new class list whenever it is
// recomputed.
func OnUpdate(fn func(classes []string)) Option {
	return func(p *Projector) {
		p.onUpdate = fn
	}
}

// Projector keeps the class list in step with state and config.
type Projector struct {
	source   Source
	config   *configstore.Store
	logger   *slog.Logger
	onUpdate func([]string)

	mu        sync.Mutex
	keys      []string
	classes   []string
	stateSub  *eventmap.Subscription
	configSub *eventmap.Subscription
	closed    bool
}

// New starts projecting source according to config. If ConfigKey is already
// set the class list is computed immediately.
func New(source Source, config *configstore.Store, opts ...Option) *Projector {
	p := &Projector{
		source: source,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	sub := config.OnPropertyChange([]string{ConfigKey}, func(changes eventmap.Changes, _, _ eventmap.Snapshot) {
		p.listen(configstore.Split(changes[ConfigKey].NewValue, Delimiter))
	})

	p.mu.Lock()
	p.configSub = sub
	p.mu.Unlock()
	return p
}

// Keys returns the watched state keys.
func (p *Projector) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.keys)
}

// Classes returns the current class list in watched-key order.
func (p *Projector) Classes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.classes)
}

// Close stops watching config and state.
func (p *Projector) Close() {
	p.mu.Lock()
	p.closed = true
	subs := []*eventmap.Subscription{p.configSub, p.stateSub}
	p.configSub, p.stateSub = nil, nil
	p.mu.Unlock()

	for _, s := range subs {
		if s != nil {
			s.Destroy()
		}
	}
}

func (p *Projector) listen(keys []string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	old := p.stateSub
	p.stateSub = nil
	p.keys = keys
	p.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	p.logger.Debug("cssclass: watching state keys", "keys", keys)

	p.update(keys, p.source.GetAll())
	if len(keys) == 0 {
		return
	}
	sub := p.source.OnParamChange(keys, func(_ eventmap.Changes, newState, _ eventmap.Snapshot) {
		p.update(keys, newState)
	})

	p.mu.Lock()
	if p.closed || p.stateSub != nil {
		p.mu.Unlock()
		sub.Destroy()
		return
	}
	p.stateSub = sub
	p.mu.Unlock()
}

func (p *Projector) update(keys []string, st eventmap.Snapshot) {
	classes := Project(keys, st)

	p.mu.Lock()
	if !slices.Equal(p.keys, keys) {
		p.mu.Unlock()
		return
	}
	p.classes = classes
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(slices.Clone(classes))
	}
}

// Project returns the classes for keys in st.
func Project(keys []string, st eventmap.Snapshot) []string {
	classes := []string{}
	for _, key := range keys {
		for _, v := range values(st[key]) {
			classes = append(classes, SafeClass(fmt.Sprintf("%s--%s", key, v)))
		}
	}
	return classes
}

var unsafeChars = regexp.MustCompile(`\W`)

// SafeClass replaces every non-word character with "_".
func SafeClass(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

func values(v any) []string {
	if v == nil {
		return nil
	}
	if eventmap.IsSequence(v) {
		rv := reflect.ValueOf(v)
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if s := fmt.Sprint(rv.Index(i).Interface()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := fmt.Sprint(v); s != "" {
		return []string{s}
	}
	return nil
}
