package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/capture"
	"github.com/mattjoyce/hooky/internal/events"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/session"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
	"github.com/mattjoyce/hooky/internal/webhook"
)

type testEnv struct {
	t        *testing.T
	srv      *httptest.Server
	server   *Server
	db       *storage.DB
	store    *store.Store
	hub      *events.Hub
	webhooks *webhook.Service
	tokens   *auth.Tokens
	sessions *session.Manager
	logs     *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "hooky.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.New()
	hub := events.NewHub()
	t.Cleanup(hub.Close)

	replies := response.NewResolver(db, s)
	svc := webhook.NewService(db, s, replies, logger)
	tokens := auth.NewTokens("test-jwt-secret", time.Hour)
	sessions := session.NewManager("test-session-secret", 6, false)

	capt := capture.New(capture.Config{
		MaxBodyBytes:           1 << 20,
		BinaryPrefixes:         []string{"image/", "video/", "audio/", "application/octet-stream"},
		ExcludedHeaderPrefixes: []string{"x-hooky-"},
		ReadTimeout:            5 * time.Second,
	}, svc, db, s, hub, replies, logger)

	server := New(Config{BaseURL: "http://localhost:3000"}, Deps{
		DB:       db,
		Webhooks: svc,
		Users:    auth.NewUsers(db, s, tokens, logger),
		Tokens:   tokens,
		Sessions: sessions,
		Hub:      hub,
		Capture:  capt,
	}, logger)
	server.keepAlive = 50 * time.Millisecond

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		t:        t,
		srv:      srv,
		server:   server,
		db:       db,
		store:    s,
		hub:      hub,
		webhooks: svc,
		tokens:   tokens,
		sessions: sessions,
		logs:     &logs,
	}
}

// user creates an account directly and returns its id and a bearer token.
func (e *testEnv) user(email string) (string, string) {
	e.t.Helper()
	u := &store.User{Email: email}
	require.NoError(e.t, e.store.Users.Create(context.Background(), e.db, u))
	tok, err := e.tokens.Issue(u.ID)
	require.NoError(e.t, err)
	return u.ID, tok
}

type reqOpt func(*http.Request)

func bearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func (e *testEnv) anon(sid string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: e.sessions.Sign(sid)})
	}
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

// do sends a request. A string body is sent as is; anything else is JSON
// encoded.
func (e *testEnv) do(method, path string, body any, opts ...reqOpt) *http.Response {
	e.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(e.t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	for _, o := range opts {
		o(req)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func newSID(t *testing.T) string {
	t.Helper()
	id, err := session.NewID()
	require.NoError(t, err)
	return id
}
