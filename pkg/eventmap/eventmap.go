package eventmap

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Event is the kind of mutation a subscriber is notified about.
type Event string

const (
	EventSet    Event = "set"
	EventDelete Event = "delete"
	EventClear  Event = "clear"
)

// Callback receives the event kind, the snapshot after the mutation and the
// snapshot immediately preceding it.
type Callback func(event Event, newState, oldState Snapshot)

// Subscription is returned by On. Call Destroy to stop receiving events.
type Subscription struct {
	ID    uint64
	Event Event

	once    sync.Once
	destroy func()
}

// Destroy removes the callback from its subscriber list. It is safe to call
// more than once.
func (s *Subscription) Destroy() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.destroy != nil {
			s.destroy()
		}
	})
}

type subscriber struct {
	id uint64
	cb Callback
}

// Option configures a Map.
type Option func(*Map)

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Map) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Map is an observable key/value map. It is safe for concurrent use.
type Map struct {
	// dispatchMu is held from the start of a mutation until its subscribers
	// have returned, so notifications arrive in commit order. mu is released
	// before dispatch so callbacks can read the map.
	dispatchMu sync.Mutex

	mu    sync.RWMutex
	items map[string]any
	cache Snapshot

	subMu       sync.Mutex
	subscribers map[Event][]subscriber
	nextID      uint64

	logger *slog.Logger
}

// New creates an empty Map.
func New(opts ...Option) *Map {
	m := &Map{
		items: make(map[string]any),
		cache: Snapshot{},
		subscribers: map[Event][]subscriber{
			EventSet:    nil,
			EventDelete: nil,
			EventClear:  nil,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value stored for key, or nil if there is none.
func (m *Map) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[key]
}

// Lookup returns the value stored for key and whether it exists.
func (m *Map) Lookup(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// GetAll returns the current snapshot. The snapshot is not a live view:
// later mutations produce a new one.
func (m *Map) GetAll() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache
}

// Len returns the number of keys.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Set stores value under key. Setting a value equal to the current one is a
// no-op; otherwise subscribers of EventSet are notified unless notify is false.
//
// Mutations are serialised with their notifications. A callback must not
// mutate the map it is subscribed to from the same goroutine.
func (m *Map) Set(key string, value any, notify bool) *Map {
	m.Merge(map[string]any{key: value}, notify)
	return m
}

// Merge writes every key in values and leaves other keys untouched. At most
// one EventSet notification fires for the whole batch. It reports whether
// anything changed.
func (m *Map) Merge(values map[string]any, notify bool) bool {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	old := m.cache
	changed := false
	for _, key := range Snapshot(values).Keys() {
		if m.setLocked(key, values[key]) {
			changed = true
		}
	}
	if changed {
		m.refreshLocked()
	}
	current := m.cache
	m.mu.Unlock()

	if changed && notify {
		m.notify(EventSet, current, old)
	}
	return changed
}

// Replace makes values the complete contents of the map. Existing keys not
// present in values are cleared to the empty string. Exactly one EventSet
// notification fires unless notify is false.
func (m *Map) Replace(values map[string]any, notify bool) *Map {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	old := m.cache
	for _, key := range lo.Without(old.Keys(), lo.Keys(values)...) {
		m.setLocked(key, nil)
	}
	for _, key := range Snapshot(values).Keys() {
		m.setLocked(key, values[key])
	}
	m.refreshLocked()
	current := m.cache
	m.mu.Unlock()

	if notify {
		m.notify(EventSet, current, old)
	}
	return m
}

// Del removes key. Subscribers of EventDelete are notified unless notify is
// false or the key did not exist.
func (m *Map) Del(key string, notify bool) *Map {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	old := m.cache
	_, ok := m.items[key]
	if ok {
		delete(m.items, key)
		m.refreshLocked()
	}
	current := m.cache
	m.mu.Unlock()

	if ok && notify {
		m.notify(EventDelete, current, old)
	}
	return m
}

// Clear removes every key. Subscribers of EventClear are notified unless
// notify is false.
func (m *Map) Clear(notify bool) *Map {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	old := m.cache
	m.items = make(map[string]any)
	m.refreshLocked()
	current := m.cache
	m.mu.Unlock()

	if notify {
		m.notify(EventClear, current, old)
	}
	return m
}

// On registers cb for event and immediately invokes it once with
// (EventSet, current snapshot, empty snapshot). An event kind the map has
// never seen gets a new, empty subscriber list.
func (m *Map) On(event Event, cb Callback) *Subscription {
	m.subMu.Lock()
	m.nextID++
	id := m.nextID
	if cb != nil {
		m.subscribers[event] = append(m.subscribers[event], subscriber{id: id, cb: cb})
	}
	m.subMu.Unlock()

	sub := &Subscription{
		ID:    id,
		Event: event,
		destroy: func() {
			m.unsubscribe(event, id)
		},
	}

	if cb != nil {
		m.invoke(subscriber{id: id, cb: cb}, EventSet, m.GetAll(), Snapshot{})
	}
	return sub
}

// Subscribers returns the number of callbacks registered for event.
func (m *Map) Subscribers(event Event) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribers[event])
}

func (m *Map) unsubscribe(event Event, id uint64) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers[event] = lo.Reject(m.subscribers[event], func(s subscriber, _ int) bool {
		return s.id == id
	})
}

// setLocked stores value under key and reports whether it changed.
func (m *Map) setLocked(key string, value any) bool {
	value = Normalize(value)
	if current, ok := m.items[key]; ok && Equal(current, value) {
		return false
	}
	m.items[key] = value
	return true
}

func (m *Map) refreshLocked() {
	cache := make(Snapshot, len(m.items))
	for k, v := range m.items {
		cache[k] = v
	}
	m.cache = cache
}

// notify invokes every subscriber of event in registration order. The list
// is copied first so callbacks may subscribe or unsubscribe.
func (m *Map) notify(event Event, newState, oldState Snapshot) {
	m.subMu.Lock()
	subs := append([]subscriber(nil), m.subscribers[event]...)
	m.subMu.Unlock()

	for _, s := range subs {
		m.invoke(s, event, newState, oldState)
	}
}

// invoke runs one callback. A panicking subscriber is logged and does not
// prevent delivery to the rest.
func (m *Map) invoke(s subscriber, event Event, newState, oldState Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("eventmap: subscriber panicked",
				"event", string(event),
				"subscription", s.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.cb(event, newState, oldState)
}
