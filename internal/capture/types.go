package capture

import (
	"context"
	"errors"
	"time"

	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/store"
)

// Methods are the HTTP methods the capture endpoint accepts.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Gate failures. Nothing is recorded when either is returned.
var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// UnknownIP is recorded when no forwarding header names the caller.
const UnknownIP = "0.0.0.0"

// Config bounds what the endpoint accepts.
type Config struct {
	MaxBodyBytes           int64
	BinaryPrefixes         []string
	ExcludedHeaderPrefixes []string
	ReadTimeout            time.Duration
}

// WebhookLookup finds the live webhook for a token. Implementations return
// an error wrapping storage.ErrRecordNotFound when there is none.
type WebhookLookup interface {
	LookupByToken(ctx context.Context, token string) (*store.Webhook, error)
}

// Publisher fans captured requests out to viewers.
type Publisher interface {
	Publish(topic, eventType string, data any) (int, error)
}

// ReplyResolver computes the reply for a webhook.
type ReplyResolver interface {
	Resolve(ctx context.Context, webhookID string) (response.Reply, error)
}

// ErrorResponse is the JSON body of gate failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
