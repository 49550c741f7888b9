package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/telemetry"
	"github.com/vango-dev/statekit/pkg/urlsync"
)

// StoreFactory builds one state store and the config store it reads. The
// server calls it once for the shared HTTP store and once per session.
type StoreFactory func() (*state.Manager, *configstore.Store)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the listen address (default: ":8080").
	Address string

	// NewStore builds stores. Required.
	NewStore StoreFactory

	// Codec encodes fragments for sessions (default: urlsync.NewCodec()).
	Codec urlsync.Codec

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates WebSocket origins (default: SameOriginCheck).
	CheckOrigin func(r *http.Request) bool

	// HeartbeatInterval is the ping period for idle sessions.
	HeartbeatInterval time.Duration

	// ReadTimeout is how long a session may stay silent, pongs included.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration

	// SendQueueSize is the number of outgoing messages buffered per session.
	SendQueueSize int

	// ReadHeaderTimeout bounds reading HTTP request headers.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// Metrics records session metrics and enables /metrics when set.
	Metrics *telemetry.Metrics

	// Gatherer serves /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// Logger is the server logger (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with defaults filled in.
// NewStore is left nil.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		Codec:             urlsync.NewCodec(),
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		HeartbeatInterval: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     64,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Gatherer:          prometheus.DefaultGatherer,
	}
}

func (c *ServerConfig) withDefaults() *ServerConfig {
	out := *c
	defaults := DefaultServerConfig()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.Codec.Base == "" {
		out.Codec.Base = defaults.Codec.Base
	}
	if out.Codec.Delimiter == "" {
		out.Codec.Delimiter = defaults.Codec.Delimiter
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.SendQueueSize == 0 {
		out.SendQueueSize = defaults.SendQueueSize
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.Gatherer == nil {
		out.Gatherer = defaults.Gatherer
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.NewStore == nil {
		out.NewStore = func() (*state.Manager, *configstore.Store) {
			cs := configstore.New(out.Logger)
			return state.New(state.WithLogger(out.Logger), state.WithConfig(cs)), cs
		}
	}
	return &out
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}
