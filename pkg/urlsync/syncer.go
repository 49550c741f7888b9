package urlsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/statekit/pkg/state"
)

// Store is the part of state.Manager a Syncer drives.
type Store interface {
	Seed(values state.Values)
	Set(ctx context.Context, query state.Values) (*state.Result, error)
	Defaults() state.Values
	BindURL(w state.URLWriter)
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCodec sets the fragment codec.
func WithCodec(c Codec) Option {
	return func(s *Syncer) {
		s.codec = c.normalized()
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Syncer binds one Store to one Location.
type Syncer struct {
	store  Store
	loc    Location
	codec  Codec
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen string
}

// New reads the current URL into store without notifying subscribers and
// registers the Syncer as the store's URL writer.
func New(store Store, loc Location, opts ...Option) *Syncer {
	s := &Syncer{
		store:  store,
		loc:    loc,
		codec:  NewCodec(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	href := loc.Href()
	s.lastSeen = href
	params, err := s.codec.Decode(href)
	if err != nil {
		s.logger.Warn("urlsync: ignoring malformed URL", "href", href, "error", err)
	} else {
		store.Seed(params)
	}
	store.BindURL(s)
	return s
}

// Codec returns the codec in use.
func (s *Syncer) Codec() Codec {
	return s.codec
}

// Loaded runs the current URL, overlaid on the registered defaults, through
// the store's pipeline. Call it once the page has finished loading.
func (s *Syncer) Loaded(ctx context.Context) (*state.Result, error) {
	href := s.loc.Href()
	s.mu.Lock()
	s.lastSeen = href
	s.mu.Unlock()
	return s.apply(ctx, href)
}

// Navigated handles a URL change reported by the browser. A URL equal to
// the last one seen or written is ignored and (nil, nil) is returned.
func (s *Syncer) Navigated(ctx context.Context, href string) (*state.Result, error) {
	s.mu.Lock()
	if href == s.lastSeen {
		s.mu.Unlock()
		return nil, nil
	}
	s.lastSeen = href
	s.mu.Unlock()

	s.logger.Debug("urlsync: external navigation", "href", href)
	return s.apply(ctx, href)
}

func (s *Syncer) apply(ctx context.Context, href string) (*state.Result, error) {
	params, err := s.codec.Decode(href)
	if err != nil {
		return nil, err
	}
	query := state.Values{}
	for k, v := range s.store.Defaults() {
		query[k] = v
	}
	for k, v := range params {
		query[k] = v
	}
	return s.store.Set(ctx, query)
}

// WriteState implements state.URLWriter. The current URL's parameters are
// kept and overlaid with validated; nothing is written when the result
// equals the current fragment.
func (s *Syncer) WriteState(_ context.Context, validated state.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()

	href := s.loc.Href()
	params, err := s.codec.Decode(href)
	if err != nil {
		s.logger.Warn("urlsync: replacing malformed URL", "href", href, "error", err)
		params = map[string]any{}
	}
	for k, v := range validated {
		params[k] = v
	}

	frag := s.codec.Encode(params)
	current := s.codec.Fragment(href)
	if frag == current || (frag == s.codec.Base && current == "") {
		return
	}

	s.loc.Replace(frag)
	s.lastSeen = s.loc.Href()
	s.logger.Debug("urlsync: wrote URL", "fragment", frag)
}
