package watch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/hooky/internal/events"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func captured(id string, at time.Time) store.CapturedRequest {
	return store.CapturedRequest{
		ID:         id,
		WebhookID:  "wh-1",
		Method:     "POST",
		Headers:    store.StringMap{"content-type": "application/json"},
		Body:       strPtr(`{"n":1}`),
		CapturedAt: storage.NewTime(at),
		SourceIP:   "203.0.113.9",
	}
}

func TestReadSSE(t *testing.T) {
	stream := ": connected\n\n" +
		"id: 1\nevent: new-request\ndata: {\"id\":\"a\"}\n\n" +
		": keep-alive\n\n" +
		"id: 2\nevent: other\ndata: one\ndata: two\n\n" +
		"id: 3\ndata: {\"id\":\"c\"}\n"

	var got []events.Event
	require.NoError(t, readSSE(strings.NewReader(stream), func(e events.Event) {
		got = append(got, e)
	}))

	// The last event has no terminating blank line and is dropped.
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, events.TypeNewRequest, got[0].Type)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0].Data))
	assert.Equal(t, "other", got[1].Type)
	assert.Equal(t, "one\ntwo", string(got[1].Data))
}

func TestDecodeCapture(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		ok   bool
	}{
		{"new request", events.Event{Type: events.TypeNewRequest, Data: []byte(`{"id":"r1","method":"GET"}`)}, true},
		{"untyped", events.Event{Data: []byte(`{"id":"r1"}`)}, true},
		{"other type", events.Event{Type: "joined", Data: []byte(`{"id":"r1"}`)}, false},
		{"bad json", events.Event{Type: events.TypeNewRequest, Data: []byte(`{`)}, false},
		{"missing id", events.Event{Type: events.TypeNewRequest, Data: []byte(`{}`)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := decodeCapture(tt.ev)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, "r1", req.ID)
			}
		})
	}
}

func TestMergeRequestsNewestFirstAndDeduped(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := []store.CapturedRequest{captured("b", base.Add(time.Second))}

	out := mergeRequests(existing,
		captured("a", base),
		captured("c", base.Add(2*time.Second)),
		captured("b", base.Add(time.Second)),
	)

	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestMergeRequestsIsBounded(t *testing.T) {
	base := time.Now()
	var incoming []store.CapturedRequest
	for i := range maxRequests + 10 {
		incoming = append(incoming, captured(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Millisecond)))
	}
	out := mergeRequests(nil, incoming...)
	assert.Len(t, out, maxRequests)
	assert.Equal(t, incoming[len(incoming)-1].ID, out[0].ID)
}

func TestBodyPreview(t *testing.T) {
	assert.Equal(t, "(empty)", bodyPreview(nil, 10))
	assert.Equal(t, "(empty)", bodyPreview(strPtr(""), 10))
	assert.Equal(t, "a b c", bodyPreview(strPtr("a\n  b\tc"), 10))
	assert.Equal(t, "abcdefg...", bodyPreview(strPtr("abcdefghijklmnop"), 10))
}

func TestRenderDetail(t *testing.T) {
	r := captured("r1", time.Now().Add(-time.Minute))
	r.QueryParams = store.StringMap{"b": "2", "a": "1"}
	r.UserAgent = strPtr("curl/8.0")

	out := renderDetail(r, NewDefaultTheme())
	assert.Contains(t, out, "203.0.113.9")
	assert.Contains(t, out, "curl/8.0")
	assert.Contains(t, out, `{"n":1}`)
	assert.Contains(t, out, "content-type")
	assert.Less(t, strings.Index(out, ": 1"), strings.Index(out, ": 2"))
}

func TestSpinnerDecay(t *testing.T) {
	now := time.Now()
	var s Spinner
	s.OnCapture(now)
	assert.Equal(t, spinnerDots, s.dots)

	s.Decay(now.Add(5 * time.Second))
	assert.Equal(t, 3, s.dots)
	s.Decay(now.Add(time.Minute))
	assert.Equal(t, 0, s.dots)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 1m", formatDuration(2*time.Hour+time.Minute))
	assert.Equal(t, "1d 2h", formatDuration(26*time.Hour))
}

func TestModelUpdate(t *testing.T) {
	m := New(NewClient("http://localhost:8080/", "wh-1", ""))
	assert.Equal(t, "http://localhost:8080", m.client.BaseURL)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := next.(Model)

	base := time.Now()
	next, cmd := model.Update(historyMsg{captured("old", base.Add(-time.Hour))})
	model = next.(Model)
	assert.Nil(t, cmd)

	next, cmd = model.Update(captureMsg(captured("new", base)))
	model = next.(Model)
	assert.NotNil(t, cmd)
	require.Len(t, model.requests, 2)
	assert.Equal(t, "new", model.requests[0].ID)
	assert.True(t, model.health.Connected)

	sel, ok := model.Selected()
	require.True(t, ok)
	assert.Equal(t, "new", sel.ID)
	assert.Contains(t, model.View(), "HOOKY WATCH")

	next, _ = model.Update(sseDisconnectedMsg{})
	model = next.(Model)
	assert.False(t, model.health.Connected)
	assert.NotEmpty(t, model.lastError)
}

func TestClientFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/healthz":
			_, _ = w.Write([]byte(`{"status":"ok","uptime_seconds":12}`))
		case "/api/webhooks/wh-1/requests":
			_, _ = w.Write([]byte(`{"data":[{"id":"r1","method":"PUT","timestamp":"2026-01-02T03:04:05Z"}],"pagination":{"total":1}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wh-1", "tok")

	h, ok := c.fetchHealth().(healthMsg)
	require.True(t, ok)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, int64(12), h.UptimeSeconds)

	hist, ok := c.fetchHistory().(historyMsg)
	require.True(t, ok)
	require.Len(t, hist, 1)
	assert.Equal(t, "PUT", hist[0].Method)
	assert.Equal(t, 2026, hist[0].CapturedAt.Year())

	missing := NewClient(srv.URL, "nope", "tok")
	_, isErr := missing.fetchHistory().(errMsg)
	assert.True(t, isErr)
}

func TestClientSubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/webhooks/wh-1/events", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": connected\n\nid: 1\nevent: new-request\ndata: {\"id\":\"r1\",\"method\":\"POST\"}\n\n"))
	}))
	defer srv.Close()

	ch := make(chan store.CapturedRequest, 1)
	msg := NewClient(srv.URL, "wh-1", "").subscribe(ch)()
	assert.IsType(t, sseDisconnectedMsg{}, msg)

	select {
	case r := <-ch:
		assert.Equal(t, "r1", r.ID)
	default:
		t.Fatal("expected a capture")
	}
}
