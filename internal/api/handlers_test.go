package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/capture"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/session"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
	"github.com/mattjoyce/hooky/internal/webhook"
)

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[HealthzResponse](t, resp).Status)

	require.NoError(t, e.db.Close())
	resp = e.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodGet, "/capture/nothing-here", nil)

	resp := e.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "hooky_captures_total")
}

func TestInitBootstrap(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(http.MethodGet, "/init", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	c := cookieNamed(resp, session.CookieName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 6*24*60*60, c.MaxAge)

	first := decode[store.Webhook](t, resp)
	assert.Equal(t, "/webhooks/"+first.ID, resp.Header.Get("Location"))
	assert.Len(t, first.Token, 16)
	assert.True(t, first.IsEnabled)

	sid, err := e.sessions.Verify(c.Value)
	require.NoError(t, err)

	resp = e.do(http.MethodGet, "/init", nil, e.anon(sid))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, cookieNamed(resp, session.CookieName), "an existing session is kept")
	assert.Equal(t, first.ID, decode[store.Webhook](t, resp).ID)

	// a forged cookie is ignored and a new session minted
	forged := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sid + ".deadbeef"})
	}
	resp = e.do(http.MethodGet, "/init", nil, forged)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, first.ID, decode[store.Webhook](t, resp).ID)
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(http.MethodPost, "/api/auth/register", CredentialsRequest{Email: "Ada@Example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, OKResponse{OK: true}, decode[OKResponse](t, resp))

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"duplicate", CredentialsRequest{Email: "ada@example.com", Password: "another-one"}, http.StatusConflict, "An account with this email already exists"},
		{"short password", CredentialsRequest{Email: "bob@example.com", Password: "short"}, http.StatusBadRequest, "Password must be at least 8 characters"},
		{"missing fields", CredentialsRequest{}, http.StatusBadRequest, "Email and password are required"},
		{"bad json", "{not json", http.StatusBadRequest, "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(http.MethodPost, "/api/auth/register", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, decode[ErrorResponse](t, resp).Error)
		})
	}

	resp = e.do(http.MethodPost, "/api/auth/login", CredentialsRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/auth/login", CredentialsRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[LoginResponse](t, resp)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "ada@example.com", login.User.Email)
	c := cookieNamed(resp, auth.CookieName)
	require.NotNil(t, c)
	assert.Equal(t, login.Token, c.Value)

	withCookie := func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: login.Token}) }
	resp = e.do(http.MethodGet, "/api/auth/me", nil, withCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, login.User.ID, decode[store.User](t, resp).ID)

	resp = e.do(http.MethodGet, "/api/auth/me", nil, bearer(login.Token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decode[ErrorResponse](t, resp).Error)

	resp = e.do(http.MethodGet, "/api/auth/me", nil, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/auth/logout", nil, withCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = cookieNamed(resp, auth.CookieName)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestWebhookCRUD(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("crud@example.com")

	resp := e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "my-hook"}, bearer(tok))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[store.Webhook](t, resp)
	assert.Equal(t, "my-hook", created.Token)

	errCases := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"missing token", map[string]any{}, http.StatusBadRequest, "Token is required"},
		{"invalid token", webhook.CreateInput{Token: "no spaces"}, http.StatusUnprocessableEntity, "Token may only contain lowercase letters, numbers, and dashes"},
		{"long token", webhook.CreateInput{Token: strings.Repeat("a", 65)}, http.StatusUnprocessableEntity, "Token must be at most 64 characters"},
		{"taken", webhook.CreateInput{Token: "my-hook"}, http.StatusConflict, "Token already in use"},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(http.MethodPost, "/api/webhooks", tt.body, bearer(tok))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, decode[ErrorResponse](t, resp).Error)
		})
	}

	resp = e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "anyone"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp = e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: fmt.Sprintf("extra-%d", i)}, bearer(tok))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp = e.do(http.MethodGet, "/api/webhooks?page=1&size=3", nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `{"total":4,"current_page":1,"total_page":2,"size":3,"has_next_page":true}`, string(raw["pagination"]))
	var items []store.WebhookSummary
	require.NoError(t, json.Unmarshal(raw["data"], &items))
	assert.Len(t, items, 3)
	assert.Equal(t, "extra-2", items[0].Token, "newest first")

	resp = e.do(http.MethodGet, "/api/webhooks?search=MY-", nil, bearer(tok))
	page := decode[webhook.Page[store.WebhookSummary]](t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, created.ID, page.Data[0].ID)

	resp = e.do(http.MethodPatch, "/api/webhooks/"+created.ID, map[string]any{"name": "Renamed", "enabled": false, "visibility": "public"}, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[store.Webhook](t, resp)
	assert.Equal(t, "Renamed", *updated.Name)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, store.VisibilityPublic, updated.Visibility)

	resp = e.do(http.MethodPatch, "/api/webhooks/"+created.ID, map[string]any{"token": "extra-0"}, bearer(tok))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(http.MethodGet, "/api/webhooks/"+created.ID, nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[map[string]any](t, resp)
	assert.Equal(t, float64(0), detail["request_count"])
	assert.Equal(t, true, detail["response"].(map[string]any)["is_default"])

	resp = e.do(http.MethodDelete, "/api/webhooks/"+created.ID, nil, bearer(tok))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(http.MethodGet, "/api/webhooks/"+created.ID, nil, bearer(tok))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = e.do(http.MethodPost, "/capture/my-hook", "x")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConcurrentCreateSameToken(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("race@example.com")

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "contested"}, bearer(tok)).StatusCode
		}(i)
	}
	wg.Wait()
	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
}

func TestResponseConfigEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("reply@example.com")
	_, other := e.user("other@example.com")

	resp := e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "reply-hook"}, bearer(tok))
	wh := decode[store.Webhook](t, resp)
	path := "/api/webhooks/" + wh.ID + "/response"

	resp = e.do(http.MethodGet, path, nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status_code":200,"headers":{},"body":null,"content_type":"text/plain","is_default":true}`, readBody(t, resp))

	resp = e.do(http.MethodPut, path, map[string]any{"status_code": 201}, bearer(other))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(http.MethodPut, path, map[string]any{"status_code": 700}, bearer(tok))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Status code must be between 100 and 599", decode[ErrorResponse](t, resp).Error)

	resp = e.do(http.MethodPut, path, "{", bearer(tok))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(http.MethodPut, path, map[string]any{
		"status_code":  201,
		"headers":      map[string]string{"X-Foo": "bar", "content-type": "text/plain"},
		"body":         "hi",
		"content_type": "text/plain",
	}, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[response.Config](t, resp)
	assert.Equal(t, 201, cfg.StatusCode)
	assert.Equal(t, "bar", cfg.Headers["x-foo"])

	resp = e.do(http.MethodPost, "/capture/reply-hook", `{"a":1}`, header("Content-Type", "application/json"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "hi", readBody(t, resp))
	assert.Equal(t, "bar", resp.Header.Get("X-Foo"))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	resp = e.do(http.MethodPut, path, map[string]any{"body": nil}, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg = decode[response.Config](t, resp)
	assert.Nil(t, cfg.Body)
	assert.Equal(t, 201, cfg.StatusCode, "partial updates keep other fields")

	resp = e.do(http.MethodDelete, path, nil, bearer(tok))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(http.MethodPost, "/capture/reply-hook", "x")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("X-Foo"))
}

func TestAnonymousOwnershipOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	sid := newSID(t)
	resp := e.do(http.MethodGet, "/init", nil, e.anon(sid))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wh := decode[store.Webhook](t, resp)

	_, stranger := e.user("stranger@example.com")
	others := map[string][]reqOpt{
		"other session": {e.anon(newSID(t))},
		"nobody":        nil,
		"user":          {bearer(stranger)},
	}
	for name, opts := range others {
		t.Run(name, func(t *testing.T) {
			resp := e.do(http.MethodPatch, "/api/webhooks/"+wh.ID, map[string]any{"enabled": false}, opts...)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "Forbidden", decode[ErrorResponse](t, resp).Error)

			resp = e.do(http.MethodGet, "/api/webhooks/"+wh.ID+"/requests", nil, opts...)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}

	resp = e.do(http.MethodPatch, "/api/webhooks/"+wh.ID, map[string]any{"name": "mine"}, e.anon(sid))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodDelete, "/api/webhooks/no-such-id", nil, e.anon(sid))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestClaimFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	sid := newSID(t)
	resp := e.do(http.MethodGet, "/init", nil, e.anon(sid))
	wh := decode[store.Webhook](t, resp)

	resp = e.do(http.MethodGet, "/api/webhooks/unclaimed", nil, e.anon(sid))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, wh.ID, decode[store.Webhook](t, resp).ID)

	uid, tok := e.user("claimer@example.com")

	resp = e.do(http.MethodPost, "/api/webhooks/claim", nil, e.anon(sid))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/webhooks/claim", nil, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No anonymous session found", decode[ErrorResponse](t, resp).Error)

	resp = e.do(http.MethodPost, "/api/webhooks/claim", nil, bearer(tok), e.anon(sid))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared, "claim expires the anonymous session cookie")
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
	claimed := decode[store.Webhook](t, resp)
	assert.Equal(t, wh.ID, claimed.ID)
	require.NotNil(t, claimed.OwnerID)
	assert.Equal(t, uid, *claimed.OwnerID)

	resp = e.do(http.MethodPost, "/api/webhooks/claim", nil, bearer(tok), e.anon(sid))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No unclaimed webhook found for this session", decode[ErrorResponse](t, resp).Error)

	resp = e.do(http.MethodGet, "/api/webhooks/unclaimed", nil, e.anon(sid))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "null", strings.TrimSpace(readBody(t, resp)))

	resp = e.do(http.MethodGet, "/api/webhooks", nil, bearer(tok))
	page := decode[webhook.Page[store.WebhookSummary]](t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, wh.ID, page.Data[0].ID)
}

func TestCaptureEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("e2e@example.com")
	resp := e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "my-token"}, bearer(tok))
	wh := decode[store.Webhook](t, resp)

	resp = e.do(http.MethodGet, "/capture/my-token?first=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodPost, "/capture/my-token", `{"a":1}`, header("Content-Type", "application/json"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	resp = e.do(http.MethodGet, "/api/webhooks/"+wh.ID+"/requests", nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[webhook.Page[store.CapturedRequest]](t, resp)
	require.Len(t, page.Data, 2)
	newest := page.Data[0]
	assert.Equal(t, "POST", newest.Method)
	require.NotNil(t, newest.Body)
	assert.Equal(t, `{"a":1}`, *newest.Body)
	assert.Equal(t, "my-token", newest.WebhookToken)
	assert.False(t, newest.CapturedAt.Before(page.Data[1].CapturedAt.Time))

	resp = e.do(http.MethodGet, "/api/webhooks/"+wh.ID+"/requests?method=get", nil, bearer(tok))
	page = decode[webhook.Page[store.CapturedRequest]](t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "1", page.Data[0].QueryParams["first"])

	resp = e.do(http.MethodGet, "/api/webhooks/"+wh.ID+"/requests/"+newest.ID, nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, newest.ID, decode[store.CapturedRequest](t, resp).ID)

	resp = e.do(http.MethodPost, "/capture/my-token", "x", header("Content-Type", "image/png"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = e.do(http.MethodDelete, "/api/webhooks/"+wh.ID+"/requests", nil, bearer(tok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), decode[ClearedResponse](t, resp).Deleted)
}

func TestParseResponseUpdate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, u response.Update)
		wantErr bool
	}{
		{"empty", `{}`, func(t *testing.T, u response.Update) {
			assert.Nil(t, u.StatusCode)
			assert.Nil(t, u.Headers)
			assert.False(t, u.ClearBody)
		}, false},
		{"null body clears", `{"body":null}`, func(t *testing.T, u response.Update) {
			assert.True(t, u.ClearBody)
			assert.Nil(t, u.Body)
		}, false},
		{"empty body string", `{"body":""}`, func(t *testing.T, u response.Update) {
			require.NotNil(t, u.Body)
			assert.Empty(t, *u.Body)
		}, false},
		{"null headers", `{"headers":null}`, func(t *testing.T, u response.Update) {
			assert.NotNil(t, u.Headers)
			assert.Empty(t, u.Headers)
		}, false},
		{"all", `{"status_code":204,"headers":{"a":"b"},"body":"x","content_type":"text/html"}`, func(t *testing.T, u response.Update) {
			assert.Equal(t, 204, *u.StatusCode)
			assert.Equal(t, "b", u.Headers["a"])
			assert.Equal(t, "x", *u.Body)
			assert.Equal(t, "text/html", *u.ContentType)
		}, false},
		{"string status", `{"status_code":"201"}`, nil, true},
		{"numeric body", `{"body":5}`, nil, true},
		{"nested headers", `{"headers":{"a":{"b":1}}}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &raw))
			u, err := parseResponseUpdate(raw)
			if tt.wantErr {
				require.ErrorIs(t, err, access.ErrValidation)
				return
			}
			require.NoError(t, err)
			tt.check(t, u)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{access.BadRequest("x"), http.StatusBadRequest},
		{access.Validation("x"), http.StatusUnprocessableEntity},
		{access.Unauthorized(), http.StatusUnauthorized},
		{access.Forbidden(), http.StatusForbidden},
		{access.NotFound("x"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", storage.ErrRecordNotFound), http.StatusNotFound},
		{access.Conflict("x"), http.StatusConflict},
		{capture.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{capture.ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.user("leak@example.com")
	require.NoError(t, e.db.Close())

	resp := e.do(http.MethodPost, "/api/webhooks", webhook.CreateInput{Token: "whatever"}, bearer(tok))
	// the caller cannot be authenticated against a closed database
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodGet, "/init", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, resp).Error)
	assert.Contains(t, e.logs.String(), "request failed")
}
