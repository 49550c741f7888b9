package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/cssclass"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/telemetry"
	"github.com/vango-dev/statekit/pkg/validate"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testFactory() StoreFactory {
	return func() (*state.Manager, *configstore.Store) {
		cs := configstore.New(discard)
		cs.Set(cssclass.ConfigKey, "brand")
		m := state.New(state.WithConfig(cs), state.WithLogger(discard))
		m.AddConfig(map[string]validate.Spec{
			"brand": {Validator: []any{"gmc", "chevrolet"}},
			"year":  {Default: "2024"},
		})
		return m, cs
	}
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.NewStore = testFactory()
	cfg.Logger = discard
	if mutate != nil {
		mutate(cfg)
	}
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestStateEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/state", "application/json", strings.NewReader(`{"brand":"gmc","tags":["a","b"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	var msg Message
	decode(t, resp, &msg)
	if msg.Type != TypeState || msg.State["brand"] != "gmc" {
		t.Errorf("POST response = %+v", msg)
	}
	if len(msg.Classes) != 1 || msg.Classes[0] != "brand__gmc" {
		t.Errorf("Classes = %v", msg.Classes)
	}

	resp, err = http.Get(ts.URL + "/state/brand")
	if err != nil {
		t.Fatal(err)
	}
	var kv map[string]any
	decode(t, resp, &kv)
	if kv["value"] != "gmc" {
		t.Errorf("GET /state/brand = %v", kv)
	}

	resp, err = http.Get(ts.URL + "/state/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /state/missing status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &msg)
	if tags, ok := msg.State["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("GET /state = %+v", msg.State)
	}
}

func TestSetStateRejection(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/state", "application/json", strings.NewReader(`{"brand":"ford","year":"2030"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var msg Message
	decode(t, resp, &msg)
	if msg.Type != TypeRejected || msg.InvalidParams["brand"] != "ford" {
		t.Errorf("rejection = %+v", msg)
	}
	if msg.Error == "" {
		t.Error("rejection should carry an error")
	}
	if srv.Store().Get("year") != nil {
		t.Error("rejected batch was partially applied")
	}
}

func TestSetStateBadJSON(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/state", "application/json", strings.NewReader(`{"brand":`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(telemetry.WithRegistry(reg))
	_, ts := newTestServer(t, func(c *ServerConfig) {
		c.Metrics = metrics
		c.Gatherer = reg
	})
	metrics.SessionOpened()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("statekit_active_sessions 1")) {
		t.Errorf("metrics output missing gauge:\n%s", body)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	send(t, conn, Message{Type: TypeLoad, Href: "https://example.com/build#brand=gmc"})

	replace := readUntil(t, conn, TypeReplace)
	if replace.Hash != "#brand=gmc&year=2024" {
		t.Errorf("replace hash = %q", replace.Hash)
	}
	if replace.Href != "https://example.com/build#brand=gmc&year=2024" {
		t.Errorf("replace href = %q", replace.Href)
	}
	if srv.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d", srv.SessionCount())
	}

	// The browser echoes our own write back as a hashchange; it must be
	// ignored, so the next message is the rejection of the set below.
	send(t, conn, Message{Type: TypeHashChange, Href: replace.Href})
	send(t, conn, Message{Type: TypeSet, Query: state.Values{"brand": "ford"}})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var next Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if next.Type != TypeRejected || next.InvalidParams["brand"] != "ford" {
		t.Fatalf("next message = %+v, want rejection", next)
	}

	send(t, conn, Message{Type: TypeHashChange, Href: "https://example.com/build#brand=chevrolet&year=2024"})
	st := readUntil(t, conn, TypeState)
	if st.State["brand"] != "chevrolet" {
		t.Errorf("state = %v", st.State)
	}
	if len(st.Classes) != 1 || st.Classes[0] != "brand__chevrolet" {
		t.Errorf("classes = %v", st.Classes)
	}
}

func TestWebSocketMalformedMessage(t *testing.T) {
	_, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, TypeError)
	if !strings.Contains(msg.Error, "malformed") {
		t.Errorf("error = %q", msg.Error)
	}

	send(t, conn, Message{Type: "bogus"})
	msg = readUntil(t, conn, TypeError)
	if !strings.Contains(msg.Error, "bogus") {
		t.Errorf("error = %q", msg.Error)
	}
}

func TestSessionClosedOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	conn := dial(t, ts)
	send(t, conn, Message{Type: TypeLoad, Href: "https://example.com/"})
	readUntil(t, conn, TypeState)
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for srv.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("SessionCount() = %d after disconnect", srv.SessionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitSession(t *testing.T, srv *Server) *Session {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		srv.sessionsMu.Lock()
		for _, sess := range srv.sessions {
			srv.sessionsMu.Unlock()
			return sess
		}
		srv.sessionsMu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no session registered")
	return nil
}

func TestLoadAfterCloseDoesNotSubscribe(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	dial(t, ts)
	sess := waitSession(t, srv)

	sess.Close()
	sess.load("https://example.com/#brand=gmc")

	sess.subMu.Lock()
	sub := sess.changeSub
	sess.subMu.Unlock()
	if sub != nil {
		t.Error("load after Close registered a change subscription")
	}
}

func TestReloadKeepsSharedState(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()
	if _, err := srv.Store().Set(ctx, state.Values{"brand": "gmc"}); err != nil {
		t.Fatal(err)
	}

	srv.Reload(func() (*state.Manager, *configstore.Store) {
		cs := configstore.New(discard)
		m := state.New(state.WithConfig(cs), state.WithLogger(discard))
		m.AddConfig(map[string]validate.Spec{"brand": {Validator: "gmc"}})
		return m, cs
	})

	if srv.Store().Get("brand") != "gmc" {
		t.Errorf("brand = %v after reload", srv.Store().Get("brand"))
	}
	if _, err := srv.Store().Set(ctx, state.Values{"brand": "chevrolet"}); err == nil {
		t.Error("new rules not applied after reload")
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := New(&ServerConfig{NewStore: testFactory(), Logger: discard})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHTTPServerTimeouts(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"default", 0, 10 * time.Second},
		{"configured", 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&ServerConfig{
				NewStore:          testFactory(),
				Logger:            discard,
				WriteTimeout:      time.Minute,
				ReadHeaderTimeout: tt.in,
			})
			if got := srv.newHTTPServer().ReadHeaderTimeout; got != tt.want {
				t.Errorf("ReadHeaderTimeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		name, host, origin string
		want               bool
	}{
		{"no origin", "example.com", "", true},
		{"same", "example.com", "https://example.com", true},
		{"cross", "example.com", "https://evil.com", false},
		{"bad origin", "example.com", "://", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := SameOriginCheck(r); got != tt.want {
				t.Errorf("SameOriginCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}
