package api

import (
	"time"

	"github.com/mattjoyce/hooky/internal/store"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges an action with nothing else to report.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that do not keep
// cookies.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

// ClearedResponse reports how many requests were removed.
type ClearedResponse struct {
	Deleted int64 `json:"deleted"`
}

// wsMessage is both directions of the /api/ws protocol.
type wsMessage struct {
	Type      string `json:"type"`
	WebhookID string `json:"webhook_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// websocket message types
const (
	wsJoin      = "join"
	wsLeave     = "leave"
	wsJoined    = "joined"
	wsLeft      = "left"
	wsConnected = "connected"
	wsError     = "error"
)
