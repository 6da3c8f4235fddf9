package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-relay/internal/config"
	"github.com/npezzotti/go-relay/internal/server"
	"github.com/npezzotti/go-relay/internal/stats"
	"github.com/npezzotti/go-relay/internal/testutil"
	"github.com/npezzotti/go-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, origins []string, run bool) (*RelayApp, *httptest.Server) {
	t.Helper()

	logger := testutil.TestLogger(t)
	rs := server.NewRelayServer(logger, server.NewRelay(server.NewRouter(types.LikeBroadcast)), stats.NewPermissiveMock())
	if run {
		go rs.Run()
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			rs.Shutdown(ctx)
		})
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:3001",
		AllowedOrigins: origins,
		LikeDelivery:   types.LikeBroadcast,
	}
	app := NewRelayApp(chi.NewRouter(), logger, rs, cfg)

	srv := httptest.NewServer(app.mux.Handler)
	t.Cleanup(srv.Close)
	return app, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "expected websocket dial to succeed")
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	// the upgrade completes before the relay registers the client
	barrier(t, conn)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}), "expected write to succeed")
}

func receive(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()

	var env envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&env), "expected an event from the relay")
	return env
}

// barrier waits until the relay has processed everything conn sent so far.
// Events from one connection are handled in order, so the error for an
// unknown event arrives after all earlier events were applied.
func barrier(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	emit(t, conn, "barrier", nil)
	env := receive(t, conn)
	require.Equal(t, server.EventError, env.Event, "expected barrier to come back as an error event")
}

func TestNewRelayApp(t *testing.T) {
	logger := testutil.TestLogger(t)
	rs := &server.RelayServer{}
	cfg := &config.Config{
		ServerAddr:     "localhost:3001",
		AllowedOrigins: []string{"http://localhost:8081"},
		LikeDelivery:   types.LikeBroadcast,
	}

	app := NewRelayApp(chi.NewRouter(), logger, rs, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, rs, app.rs, "expected relay server to be set")
	assert.Equal(t, cfg.AllowedOrigins, app.allowedOrigins, "expected allowed origins to be set")
	assert.Equal(t, cfg.ServerAddr, app.mux.Addr, "expected server address to match config")
}

func TestHealth(t *testing.T) {
	_, srv := newTestApp(t, []string{"*"}, false)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	_, srv := newTestApp(t, []string{"*"}, false)

	tcases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "unknown path", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPost, path: "/health", status: http.StatusMethodNotAllowed},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)

			var errResp ApiError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.Equal(t, tc.status, errResp.StatusCode)
		})
	}
}

func TestCORS(t *testing.T) {
	_, srv := newTestApp(t, []string{"http://good.example"}, false)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://good.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://good.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func Test_checkOrigin(t *testing.T) {
	tcases := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{name: "no origin header", allowed: []string{"http://good.example"}, origin: "", ok: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.example", ok: true},
		{name: "listed origin", allowed: []string{"http://good.example"}, origin: "http://good.example", ok: true},
		{name: "unlisted origin", allowed: []string{"http://good.example"}, origin: "http://evil.example", ok: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := &RelayApp{allowedOrigins: tc.allowed}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			assert.Equal(t, tc.ok, app.checkOrigin(req))
		})
	}
}

func TestServeWs_RejectsOrigin(t *testing.T) {
	_, srv := newTestApp(t, []string{"http://good.example"}, true)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Origin", "http://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err, "expected dial to be rejected")
	require.NotNil(t, resp, "expected an HTTP response")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRelayStats(t *testing.T) {
	t.Run("reports connections", func(t *testing.T) {
		_, srv := newTestApp(t, []string{"*"}, true)

		a := dial(t, srv)
		emit(t, a, server.EventUserOnline, map[string]string{"userId": "u1"})
		emit(t, a, server.EventJoinChat, map[string]string{"roomId": "chat-42"})
		barrier(t, a)

		resp, err := http.Get(srv.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()

		var st types.Stats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		assert.Equal(t, types.Stats{Connections: 1, Users: 1, Rooms: 1}, st)
	})

	t.Run("relay not running", func(t *testing.T) {
		_, srv := newTestApp(t, []string{"*"}, false)

		resp, err := http.Get(srv.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestServeWs_ChatScenario(t *testing.T) {
	_, srv := newTestApp(t, []string{"*"}, true)

	a := dial(t, srv)
	b := dial(t, srv)

	emit(t, a, server.EventUserOnline, map[string]string{"userId": "u1"})
	emit(t, a, server.EventJoinChat, map[string]string{"roomId": "chat-42"})
	barrier(t, a)

	// b was connected when a came online
	env := receive(t, b)
	assert.Equal(t, server.EventUserStatusChange, env.Event)

	emit(t, b, server.EventUserOnline, map[string]string{"userId": "u2"})
	emit(t, b, server.EventJoinChat, map[string]string{"roomId": "chat-42"})
	barrier(t, b)

	env = receive(t, a)
	require.Equal(t, server.EventUserStatusChange, env.Event)
	var online types.StatusChange
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Equal(t, types.StatusChange{UserId: "u2", Status: types.StatusOnline}, online)

	emit(t, a, server.EventSendMessage, map[string]string{
		"roomId":     "chat-42",
		"text":       "hi",
		"senderId":   "u1",
		"senderName": "A",
	})

	var got []types.Message
	for _, conn := range []*websocket.Conn{a, b} {
		env := receive(t, conn)
		require.Equal(t, server.EventNewMessage, env.Event)

		var msg types.Message
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		got = append(got, msg)
	}

	assert.Equal(t, "hi", got[0].Text)
	assert.NotEmpty(t, got[0].Id, "expected a generated message id")
	assert.False(t, got[0].Timestamp.IsZero(), "expected a timestamp")
	assert.Equal(t, got[0], got[1], "expected sender and member to receive the same event")

	require.NoError(t, b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	b.Close()

	env = receive(t, a)
	require.Equal(t, server.EventUserStatusChange, env.Event)
	var offline types.StatusChange
	require.NoError(t, json.Unmarshal(env.Data, &offline))
	assert.Equal(t, types.StatusChange{UserId: "u2", Status: types.StatusOffline}, offline)
}

func TestServeWs_InvalidFrame(t *testing.T) {
	_, srv := newTestApp(t, []string{"*"}, true)

	a := dial(t, srv)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := receive(t, a)
	require.Equal(t, server.EventError, env.Event)

	var errData server.ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &errData))
	assert.Equal(t, http.StatusBadRequest, errData.Code)
	assert.Equal(t, "invalid message format", errData.Message)
}
