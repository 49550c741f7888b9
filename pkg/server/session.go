package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/cssclass"
	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/urlsync"
)

// Session is one WebSocket connection and the state store behind it.
type Session struct {
	// ID is a random identifier used in logs.
	ID string

	conn   *websocket.Conn
	config *ServerConfig
	logger *slog.Logger

	store     *state.Manager
	cfgStore  *configstore.Store
	loc       *ClientLocation
	syncer    *urlsync.Syncer
	projector *cssclass.Projector

	subMu     sync.Mutex
	changeSub *eventmap.Subscription
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc

	sendCh    chan *Message
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Session)
}

func newSession(conn *websocket.Conn, config *ServerConfig, onClose func(*Session)) *Session {
	store, cfgStore := config.NewStore()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:       id,
		conn:     conn,
		config:   config,
		logger:   config.Logger.With("session_id", id),
		store:    store,
		cfgStore: cfgStore,
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan *Message, config.SendQueueSize),
		done:     make(chan struct{}),
		onClose:  onClose,
	}
	s.loc = NewClientLocation("", s.Send)
	s.projector = cssclass.New(store, cfgStore, cssclass.WithLogger(s.logger))
	return s
}

// Store returns the session's state store.
func (s *Session) Store() *state.Manager {
	return s.store
}

// Start launches the read and write loops.
func (s *Session) Start() {
	go s.WriteLoop()
	go s.ReadLoop()
}

// ReadLoop reads client messages until the connection fails or the session
// is closed. Messages are handled one at a time.
func (s *Session) ReadLoop() {
	defer s.Close()

	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
				s.recordError("read")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("message decode error", "error", err)
			s.recordError("decode")
			s.Send(&Message{Type: TypeError, Error: "malformed message: " + err.Error()})
			continue
		}
		s.handle(&msg)
	}
}

// WriteLoop sends queued messages and heartbeats until the session closes.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Error("write error", "error", err)
				s.recordError("write")
				s.Close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			deadline := time.Now().Add(s.config.WriteTimeout)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// Send queues msg for the client. Messages are dropped when the queue is
// full or the session is closed.
func (s *Session) Send(msg *Message) {
	if msg == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.sendCh <- msg:
	default:
		s.logger.Warn("send queue full, dropping message", "type", msg.Type)
		s.recordError("send_overflow")
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()

		s.subMu.Lock()
		s.closed = true
		sub := s.changeSub
		s.subMu.Unlock()
		sub.Destroy()

		s.projector.Close()
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Session) handle(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message handler panicked", "type", msg.Type, "panic", r, "stack", string(debug.Stack()))
			s.Send(&Message{Type: TypeError, Error: "internal error"})
		}
	}()

	switch msg.Type {
	case TypeLoad:
		if s.syncer != nil {
			s.navigate(msg.Href)
			return
		}
		s.load(msg.Href)

	case TypeHashChange:
		if s.syncer == nil {
			s.load(msg.Href)
			return
		}
		s.navigate(msg.Href)

	case TypeSet:
		res, err := s.store.Set(s.ctx, msg.Query)
		if err != nil {
			s.Send(resultMessage(res, err, nil))
		}

	default:
		s.Send(&Message{Type: TypeError, Error: "unknown message type " + msg.Type})
	}
}

func (s *Session) load(href string) {
	s.loc.Report(href)
	s.syncer = urlsync.New(s.store, s.loc,
		urlsync.WithCodec(s.config.Codec),
		urlsync.WithLogger(s.logger),
	)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return
	}
	s.changeSub = s.store.OnChange(func(_ eventmap.Event, newState, _ eventmap.Snapshot) {
		s.Send(&Message{
			Type:    TypeState,
			State:   newState,
			Classes: cssclass.Project(s.projector.Keys(), newState),
		})
	})
	s.subMu.Unlock()

	if res, err := s.syncer.Loaded(s.ctx); err != nil {
		s.Send(resultMessage(res, err, nil))
	}
}

func (s *Session) navigate(href string) {
	s.loc.Report(href)
	if res, err := s.syncer.Navigated(s.ctx, href); err != nil {
		s.Send(resultMessage(res, err, nil))
	}
}

func (s *Session) recordError(kind string) {
	if s.config.Metrics != nil {
		s.config.Metrics.WebSocketError(kind)
	}
}
