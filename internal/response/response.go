// Package response decides what a capture caller gets back: either the
// webhook's configured reply or the default 200 text/plain with no body.
package response

import (
	"context"
	"errors"
	"strings"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

const (
	DefaultStatus      = 200
	DefaultContentType = "text/plain"

	// contentType for configs created without one.
	defaultStoredContentType = "application/json"

	minStatus = 100
	maxStatus = 599
)

// Reply is what gets written to a capture caller. Header names are
// lowercase.
type Reply struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// DefaultReply is returned when a webhook has no live config.
func DefaultReply() Reply {
	return Reply{
		StatusCode: DefaultStatus,
		Headers:    map[string]string{"content-type": DefaultContentType},
	}
}

// Config is the management view of a webhook's response.
type Config struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        *string           `json:"body"`
	ContentType string            `json:"content_type"`
	IsDefault   bool              `json:"is_default"`
}

// Update is a partial change. Nil fields are left alone; ClearBody sets the
// body to null.
type Update struct {
	StatusCode  *int
	Headers     map[string]string
	Body        *string
	ClearBody   bool
	ContentType *string
}

// Resolver reads and writes response configs.
type Resolver struct {
	db    *storage.DB
	store *store.Store
}

func NewResolver(db *storage.DB, s *store.Store) *Resolver {
	return &Resolver{db: db, store: s}
}

// Resolve computes the reply for webhookID.
func (r *Resolver) Resolve(ctx context.Context, webhookID string) (Reply, error) {
	cfg, err := r.store.Responses.GetByWebhook(ctx, r.db, webhookID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return DefaultReply(), nil
	}
	if err != nil {
		return Reply{}, err
	}
	return replyFor(cfg), nil
}

func replyFor(cfg *store.ResponseConfig) Reply {
	reply := DefaultReply()
	reply.StatusCode = cfg.StatusCode
	for k, v := range cfg.Headers {
		reply.Headers[strings.ToLower(k)] = v
	}
	if cfg.Body != nil {
		reply.Body = *cfg.Body
	}
	return reply
}

// Get returns the config for webhookID, or the default marker.
func (r *Resolver) Get(ctx context.Context, webhookID string) (Config, error) {
	cfg, err := r.store.Responses.GetByWebhook(ctx, r.db, webhookID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return Config{
			StatusCode:  DefaultStatus,
			Headers:     map[string]string{},
			ContentType: DefaultContentType,
			IsDefault:   true,
		}, nil
	}
	if err != nil {
		return Config{}, err
	}
	return viewOf(cfg), nil
}

func viewOf(cfg *store.ResponseConfig) Config {
	headers := map[string]string(cfg.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	return Config{
		StatusCode:  cfg.StatusCode,
		Headers:     headers,
		Body:        cfg.Body,
		ContentType: cfg.ContentType,
	}
}

func (u Update) validate() error {
	if u.StatusCode != nil && (*u.StatusCode < minStatus || *u.StatusCode > maxStatus) {
		return access.Validation("Status code must be between %d and %d", minStatus, maxStatus)
	}
	for k := range u.Headers {
		if !validHeaderName(k) {
			return access.Validation("Invalid header name %q", k)
		}
	}
	return nil
}

func (u Update) apply(cfg *store.ResponseConfig) {
	if u.StatusCode != nil {
		cfg.StatusCode = *u.StatusCode
	}
	if u.Headers != nil {
		h := make(store.StringMap, len(u.Headers))
		for k, v := range u.Headers {
			h[strings.ToLower(k)] = v
		}
		cfg.Headers = h
	}
	switch {
	case u.ClearBody:
		cfg.Body = nil
	case u.Body != nil:
		body := *u.Body
		cfg.Body = &body
	}
	if u.ContentType != nil {
		cfg.ContentType = *u.ContentType
	}
}

// upsertAttempts bounds retries when a concurrent first write wins the
// unique live-config slot.
const upsertAttempts = 2

// testHookBeforeCreate, when set, runs inside the transaction right before
// a new config row is inserted.
var testHookBeforeCreate func(ctx context.Context, tx *storage.Tx)

// Upsert validates u and applies it to the live config of webhookID,
// creating one with defaults when none exists. Nothing is written when
// validation fails.
func (r *Resolver) Upsert(ctx context.Context, webhookID string, u Update) (Config, error) {
	if err := u.validate(); err != nil {
		return Config{}, err
	}

	var (
		out *store.ResponseConfig
		err error
	)
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		out, err = r.upsertTx(ctx, webhookID, u)
		if !errors.Is(err, storage.ErrDuplicateKey) {
			break
		}
	}
	if err != nil {
		return Config{}, err
	}
	return viewOf(out), nil
}

func (r *Resolver) upsertTx(ctx context.Context, webhookID string, u Update) (*store.ResponseConfig, error) {
	var out *store.ResponseConfig
	err := r.db.TransactionContext(ctx, func(tx *storage.Tx) error {
		cfg, err := r.store.Responses.GetByWebhook(ctx, tx, webhookID)
		switch {
		case err == nil:
			u.apply(cfg)
			if err := r.store.Responses.Update(ctx, tx, cfg); err != nil {
				return err
			}
		case errors.Is(err, storage.ErrRecordNotFound):
			cfg = &store.ResponseConfig{
				WebhookID:   webhookID,
				StatusCode:  DefaultStatus,
				Headers:     store.StringMap{},
				ContentType: defaultStoredContentType,
			}
			u.apply(cfg)
			if testHookBeforeCreate != nil {
				testHookBeforeCreate(ctx, tx)
			}
			if err := r.store.Responses.Create(ctx, tx, cfg); err != nil {
				return err
			}
		default:
			return err
		}
		out = cfg
		return nil
	})
	return out, err
}

// Reset soft-deletes the live config so the default reply applies again.
func (r *Resolver) Reset(ctx context.Context, webhookID string) error {
	_, err := r.store.Responses.SoftDeleteByWebhook(ctx, r.db, webhookID)
	return err
}

// validHeaderName reports whether s is an RFC 7230 token.
func validHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
