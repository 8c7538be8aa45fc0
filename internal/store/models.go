// Package store holds hooky's per-entity repositories. Every read carries an
// explicit live-row predicate and removal is always a named soft delete.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/hooky/internal/storage"
)

// Visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// User is an authenticated principal.
type User struct {
	ID           string       `db:"id" json:"id"`
	Email        string       `db:"email" json:"email"`
	PasswordHash *string      `db:"password_hash" json:"-"`
	CreatedAt    storage.Time `db:"created_at" json:"created_at"`
	UpdatedAt    storage.Time `db:"updated_at" json:"updated_at"`
}

// Webhook is a capture target. OwnerID and SessionID are the persisted form
// of the ownership variant; use Ownership in access decisions.
type Webhook struct {
	ID         string       `db:"id" json:"id"`
	Token      string       `db:"token" json:"token"`
	Name       *string      `db:"name" json:"name"`
	Visibility string       `db:"visibility" json:"visibility"`
	IsEnabled  bool         `db:"is_enabled" json:"is_enabled"`
	OwnerID    *string      `db:"owner_id" json:"owner_id"`
	SessionID  *string      `db:"session_id" json:"-"`
	CreatedAt  storage.Time `db:"created_at" json:"created_at"`
	UpdatedAt  storage.Time `db:"updated_at" json:"updated_at"`
}

// WebhookSummary is a webhook with its live request count.
type WebhookSummary struct {
	Webhook
	RequestCount int64 `db:"request_count" json:"request_count"`
}

// CapturedRequest is one inbound HTTP transaction. Immutable once written.
type CapturedRequest struct {
	ID           string       `db:"id" json:"id"`
	WebhookID    string       `db:"webhook_id" json:"webhook_id"`
	WebhookToken string       `db:"webhook_token" json:"webhook_token"`
	Method       string       `db:"method" json:"method"`
	Headers      StringMap    `db:"headers" json:"headers"`
	QueryParams  StringMap    `db:"query_params" json:"query_params"`
	Body         *string      `db:"body" json:"body"`
	CapturedAt   storage.Time `db:"captured_at" json:"timestamp"`
	SourceIP     string       `db:"source_ip" json:"source_ip"`
	UserAgent    *string      `db:"user_agent" json:"user_agent"`
}

// ResponseConfig overrides the reply sent to capture callers.
type ResponseConfig struct {
	ID          string       `db:"id" json:"id"`
	WebhookID   string       `db:"webhook_id" json:"webhook_id"`
	StatusCode  int          `db:"status_code" json:"status_code"`
	Headers     StringMap    `db:"headers" json:"headers"`
	Body        *string      `db:"body" json:"body"`
	ContentType string       `db:"content_type" json:"content_type"`
	CreatedAt   storage.Time `db:"created_at" json:"created_at"`
	UpdatedAt   storage.Time `db:"updated_at" json:"updated_at"`
}

// StringMap stores a string map as a JSON object.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *StringMap) Scan(value interface{}) error {
	if m == nil {
		return fmt.Errorf("store.StringMap: Scan on nil pointer")
	}

	var raw string
	switch v := value.(type) {
	case nil:
		*m = StringMap{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("store.StringMap: unsupported Scan type %T", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		*m = StringMap{}
		return nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("store.StringMap: %w", err)
	}
	*m = out
	return nil
}

// MarshalJSON renders nil maps as {}.
func (m StringMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(m))
}
