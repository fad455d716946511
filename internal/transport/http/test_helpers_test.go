package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/config"
	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/metrics"
	"github.com/vovakirdan/privroom/internal/service/rooms"
	"github.com/vovakirdan/privroom/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	rooms *rooms.Service
	hub   *core.Hub
	clock *clock.Mock
}

// startTestServer runs the full router over an in-memory store and a mock clock.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	disabledLogger := zerolog.New(nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	hub := core.NewHub(cfg.Hub.MaxPending, m, &disabledLogger)
	t.Cleanup(hub.Close)

	svc := rooms.New(st, hub, core.NewTypingTracker(hub, mock, cfg.Rooms.TypingTimeout), rooms.Options{
		RoomTTL:         cfg.Rooms.TTL,
		MaxMessageBytes: cfg.Rooms.MaxMessageBytes,
		Clock:           mock,
		Metrics:         m,
		Logger:          &disabledLogger,
	})
	sessions := auth.NewSessions(auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, mock)

	router := NewRouter(Deps{Rooms: svc, Sessions: sessions, Gatherer: reg, Clock: mock}, &cfg, &disabledLogger)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, rooms: svc, hub: hub, clock: mock}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, header ...string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (e *testEnv) join(t *testing.T, room, password, name string) JoinResponse {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/api/rooms/"+room+"/join", "", JoinRequest{Password: password, Name: name})
	if status != http.StatusOK {
		t.Fatalf("join %s: status %d: %s", room, status, body)
	}
	var resp JoinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal join response: %v", err)
	}
	return resp
}

func (e *testEnv) send(t *testing.T, room, token, text string) {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/api/rooms/"+room+"/messages", token, SendMessageRequest{Text: text})
	if status != http.StatusCreated {
		t.Fatalf("send to %s: status %d: %s", room, status, body)
	}
}

func expectError(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()

	if status != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, status, body)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("unmarshal error body %q: %v", body, err)
	}
	if errResp.Code != wantCode {
		t.Fatalf("expected code %q, got %q (%s)", wantCode, errResp.Code, errResp.Error)
	}
}

type testOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, room, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/api/rooms/" + room + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readOutbound(t *testing.T, ctx context.Context, conn *websocket.Conn) testOutbound {
	t.Helper()

	var out testOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read ws frame: %v", err)
	}
	return out
}

// readEvent skips frames until one with the given event name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) testOutbound {
	t.Helper()

	for {
		out := readOutbound(t, ctx, conn)
		if out.Type == "event" && out.Event == event {
			return out
		}
	}
}
