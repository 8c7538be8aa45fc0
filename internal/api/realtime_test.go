package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hooky/internal/store"
	"github.com/mattjoyce/hooky/internal/webhook"
)

func TestSSEStream(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("sse@example.com")
	_, stranger := e.user("sse-stranger@example.com")
	wh := decode[store.Webhook](t, e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "sse-hook"}, bearer(tok)))

	resp := e.do(http.MethodGet, "/api/webhooks/"+wh.ID+"/events", nil, bearer(stranger))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/api/webhooks/"+wh.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := bufio.NewReader(stream.Body)
	line, err := lines.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/capture/sse-hook", `{"hello":"world"}`).StatusCode)

	var eventType, data string
	sawKeepAlive := false
	for data == "" {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, ": keep-alive"):
			sawKeepAlive = true
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "new-request", eventType)
	var got store.CapturedRequest
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, `{"hello":"world"}`, *got.Body)

	// keep-alives arrive while idle
	for !sawKeepAlive {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		sawKeepAlive = strings.HasPrefix(line, ": keep-alive")
	}
}

func TestSSEPublicWebhookIsViewable(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("public@example.com")
	public := store.VisibilityPublic
	wh := decode[store.Webhook](t, e.do(http.MethodPost, "/api/webhooks",
		webhook.CreateInput{Token: "public-hook", Visibility: &public}, bearer(tok)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/api/webhooks/"+wh.ID+"/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, http.StatusOK, stream.StatusCode)
}

func dialWS(t *testing.T, e *testEnv, h http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func msgType(msg map[string]json.RawMessage) string {
	var s string
	_ = json.Unmarshal(msg["type"], &s)
	return s
}

// nextOfType skips pings that may interleave with the expected message.
func nextOfType(t *testing.T, conn *websocket.Conn, want string) map[string]json.RawMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readWS(t, conn)
		if msgType(msg) == want {
			return msg
		}
	}
	t.Fatalf("no %s message", want)
	return nil
}

func TestWebSocketRooms(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("ws@example.com")
	wh := decode[store.Webhook](t, e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "ws-hook"}, bearer(tok)))

	conn := dialWS(t, e, http.Header{"Authorization": {"Bearer " + tok}})
	nextOfType(t, conn, wsConnected)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsJoin, WebhookID: "does-not-exist"}))
	msg := nextOfType(t, conn, wsError)
	assert.JSONEq(t, `"Not Found"`, string(msg["error"]))

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsJoin, WebhookID: wh.ID}))
	nextOfType(t, conn, wsJoined)

	require.Equal(t, http.StatusOK, e.do(http.MethodPut, "/capture/ws-hook", "payload").StatusCode)
	msg = nextOfType(t, conn, "new-request")
	assert.JSONEq(t, `"`+wh.ID+`"`, string(msg["webhook_id"]))
	var got store.CapturedRequest
	require.NoError(t, json.Unmarshal(msg["data"], &got))
	assert.Equal(t, "PUT", got.Method)
	assert.Equal(t, "payload", *got.Body)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsLeave, WebhookID: wh.ID}))
	nextOfType(t, conn, wsLeft)
	assert.Zero(t, e.hub.SubscriberCount(wh.ID))

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "shout"}))
	msg = nextOfType(t, conn, wsError)
	assert.JSONEq(t, `"Unknown message type"`, string(msg["error"]))
}

func TestWebSocketJoinRequiresViewability(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("private@example.com")
	wh := decode[store.Webhook](t, e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "private-hook"}, bearer(tok)))

	conn := dialWS(t, e, nil)
	nextOfType(t, conn, wsConnected)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: wsJoin, WebhookID: wh.ID}))
	nextOfType(t, conn, wsError)
	assert.Zero(t, e.hub.SubscriberCount(wh.ID))
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	e := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
