package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/session"
	"github.com/mattjoyce/hooky/internal/webhook"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, HealthzResponse{Status: "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleInit handles GET /init. It hands a visitor an anonymous session
// and a webhook to go with it.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	sid, ok := callerOf(r).SessionID()
	if !ok {
		id, err := session.NewID()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		sid = id
		s.deps.Sessions.Set(w, sid)
	}

	wh, created, err := s.deps.Webhooks.Bootstrap(r.Context(), sid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/webhooks/"+wh.ID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, wh)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.deps.Users.Register(r.Context(), req.Email, req.Password); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, OKResponse{OK: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, token, err := s.deps.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ttl := s.deps.Tokens.TTL()
	auth.SetCookie(w, token, ttl, s.config.SecureCookies)
	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(ttl),
		User:      user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, s.config.SecureCookies)
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, err := s.deps.Webhooks.Access().ResolveAuth(callerOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.deps.Users.Get(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.deps.Webhooks.List(r.Context(), callerOf(r), webhook.ListInput{
		Search: q.Get("search"),
		Page:   queryInt(q.Get("page")),
		Size:   queryInt(q.Get("size")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhook.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	wh, err := s.deps.Webhooks.Create(r.Context(), callerOf(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wh)
}

func (s *Server) handleUnclaimed(w http.ResponseWriter, r *http.Request) {
	wh, err := s.deps.Webhooks.Unclaimed(r.Context(), callerOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wh)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	wh, err := s.deps.Webhooks.Claim(r.Context(), callerOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	// the session has nothing left to claim
	s.deps.Sessions.Clear(w)
	respondJSON(w, http.StatusOK, wh)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Webhooks.Get(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhook.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	wh, err := s.deps.Webhooks.Update(r.Context(), callerOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wh)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Webhooks.Delete(r.Context(), callerOf(r), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Webhooks.GetResponse(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutResponse(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u, err := parseResponseUpdate(raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cfg, err := s.deps.Webhooks.PutResponse(r.Context(), callerOf(r), chi.URLParam(r, "id"), u)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// parseResponseUpdate reads a partial response config. The raw form is
// needed to tell an explicit "body": null from an absent body.
func parseResponseUpdate(raw map[string]json.RawMessage) (response.Update, error) {
	var u response.Update
	if v, ok := raw["status_code"]; ok {
		var code int
		if err := json.Unmarshal(v, &code); err != nil {
			return u, access.Validation("Status code must be an integer")
		}
		u.StatusCode = &code
	}
	if v, ok := raw["headers"]; ok {
		headers := map[string]string{}
		if err := json.Unmarshal(v, &headers); err != nil {
			return u, access.Validation("Headers must be an object of strings")
		}
		if headers == nil {
			headers = map[string]string{}
		}
		u.Headers = headers
	}
	if v, ok := raw["body"]; ok {
		if string(v) == "null" {
			u.ClearBody = true
		} else {
			var body string
			if err := json.Unmarshal(v, &body); err != nil {
				return u, access.Validation("Body must be a string or null")
			}
			u.Body = &body
		}
	}
	if v, ok := raw["content_type"]; ok {
		var ct string
		if err := json.Unmarshal(v, &ct); err != nil {
			return u, access.Validation("Content type must be a string")
		}
		u.ContentType = &ct
	}
	return u, nil
}

func (s *Server) handleResetResponse(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Webhooks.ResetResponse(r.Context(), callerOf(r), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.deps.Webhooks.ListRequests(r.Context(), callerOf(r), chi.URLParam(r, "id"), webhook.RequestQuery{
		Method: q.Get("method"),
		Page:   queryInt(q.Get("page")),
		Size:   queryInt(q.Get("size")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.deps.Webhooks.GetRequest(r.Context(), callerOf(r), chi.URLParam(r, "id"), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Webhooks.ClearRequests(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ClearedResponse{Deleted: n})
}

// queryInt parses a query value, treating garbage as unset.
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
