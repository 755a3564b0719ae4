package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	o := orch.New(app.NewRegistry(), app.SimplePolicy{}, orch.Options{})
	go func() { _ = o.Run(ctx) }()
	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: t.TempDir()}
	return SetupRouter(ctx, cfg, o), o
}

func do(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBasicRoutes(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/ws/signal")

	rec = do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/rooms/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(r, http.MethodGet, "/api/rooms/"+strings.Repeat("x", 65), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodPut, "/api/profile", `{"display_name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(r, http.MethodPut, "/api/profile", `{"display_name":"`+strings.Repeat("n", 37)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPut, "/api/profile", `{"display_name":" Zed "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"display_name":"Zed"}`, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = do(r, http.MethodGet, "/api/profile", "", cookies...)
	assert.JSONEq(t, `{"display_name":"Zed"}`, rec.Body.String())
}

func readMsg(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, _, err := protocol.Decode(data)
	require.NoError(t, err)
	return m
}

func writeMsg(t *testing.T, ws *websocket.Conn, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestSignalOverWebSocket(t *testing.T) {
	r, o := newRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	rec := do(r, http.MethodPut, "/api/profile", `{"display_name":"Zed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	header := http.Header{}
	for _, c := range rec.Result().Cookies() {
		header.Add("Cookie", c.Name+"="+c.Value)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer ws.Close()

	hello, ok := readMsg(t, ws).(*protocol.ConnectionSuccess)
	require.True(t, ok)
	require.NotEmpty(t, hello.SID)

	writeMsg(t, ws, &protocol.Ping{})
	assert.IsType(t, &protocol.Pong{}, readMsg(t, ws))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room","payload":{"room_id":""}}`)))
	e, ok := readMsg(t, ws).(*protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeBadRequest, e.Code)
	assert.Equal(t, protocol.KindJoinRoom, e.Ref)

	writeMsg(t, ws, &protocol.JoinRoom{RoomID: "standup"})
	joined, ok := readMsg(t, ws).(*protocol.RoomJoined)
	require.True(t, ok)
	assert.Equal(t, hello.SID, joined.HostID)
	require.Len(t, joined.Members, 1)
	assert.Equal(t, "Zed", joined.Members[0].Username, "name comes from the profile cookie")

	rec = do(r, http.MethodGet, "/api/rooms/standup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		ID          string `json:"room_id"`
		MemberCount int    `json:"member_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 1, info.MemberCount)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		_, ok := o.Registry.Room("standup")
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "disconnect empties the room")
}
