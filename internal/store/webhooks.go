package store

import (
	"context"
	"errors"
	"strings"

	"github.com/mattjoyce/hooky/internal/storage"
)

// WebhookRepo persists webhooks.
type WebhookRepo struct{}

const webhookColumns = "id, token, name, visibility, is_enabled, owner_id, session_id, created_at, updated_at"

// ListWebhooksOptions filters a webhook listing. OwnerID is required.
type ListWebhooksOptions struct {
	OwnerID string
	Search  string
	Limit   int
	Offset  int
}

// Create inserts w. A token collision with a live webhook yields
// storage.ErrDuplicateKey.
func (WebhookRepo) Create(ctx context.Context, h storage.Handler, w *Webhook) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	if w.Visibility == "" {
		w.Visibility = VisibilityPrivate
	}
	now := storage.Now()
	w.CreatedAt, w.UpdatedAt = now, now

	query := h.Rebind(`INSERT INTO webhooks (id, token, name, visibility, is_enabled, owner_id, session_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := h.ExecContext(ctx, query,
		w.ID, w.Token, w.Name, w.Visibility, w.IsEnabled, w.OwnerID, w.SessionID, w.CreatedAt, w.UpdatedAt)
	return storage.WrapError(err)
}

// GetByID returns the live webhook with id.
func (WebhookRepo) GetByID(ctx context.Context, h storage.Handler, id string) (*Webhook, error) {
	var w Webhook
	query := h.Rebind("SELECT " + webhookColumns + " FROM webhooks WHERE id = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &w, query, id); err != nil {
		return nil, storage.WrapError(err)
	}
	return &w, nil
}

// GetByToken returns the live webhook with token, enabled or not.
func (WebhookRepo) GetByToken(ctx context.Context, h storage.Handler, token string) (*Webhook, error) {
	var w Webhook
	query := h.Rebind("SELECT " + webhookColumns + " FROM webhooks WHERE token = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &w, query, token); err != nil {
		return nil, storage.WrapError(err)
	}
	return &w, nil
}

// TokenExists reports whether a live webhook already uses token.
func (r WebhookRepo) TokenExists(ctx context.Context, h storage.Handler, token string) (bool, error) {
	_, err := r.GetByToken(ctx, h, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// FindUnclaimedBySession returns the newest live anonymous webhook held by
// sessionID.
func (WebhookRepo) FindUnclaimedBySession(ctx context.Context, h storage.Handler, sessionID string) (*Webhook, error) {
	var w Webhook
	query := h.Rebind("SELECT " + webhookColumns + ` FROM webhooks
WHERE session_id = ? AND owner_id IS NULL AND ` + notDeleted + `
ORDER BY created_at DESC, id DESC LIMIT 1`)
	if err := h.GetContext(ctx, &w, query, sessionID); err != nil {
		return nil, storage.WrapError(err)
	}
	return &w, nil
}

func (o ListWebhooksOptions) where() (string, []interface{}) {
	clauses := []string{notDeleted, "owner_id = ?"}
	args := []interface{}{o.OwnerID}
	if s := strings.TrimSpace(o.Search); s != "" {
		clauses = append(clauses, `(LOWER(token) LIKE ? ESCAPE '\' OR LOWER(COALESCE(name, '')) LIKE ? ESCAPE '\')`)
		p := containsPattern(s)
		args = append(args, p, p)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns the owner's live webhooks, newest first, each with its live
// request count.
func (WebhookRepo) List(ctx context.Context, h storage.Handler, opts ListWebhooksOptions) ([]WebhookSummary, error) {
	where, args := opts.where()
	query := "SELECT " + webhookColumns + `,
  (SELECT COUNT(*) FROM requests r WHERE r.webhook_id = webhooks.id AND r.deleted_at IS NULL) AS request_count
FROM webhooks WHERE ` + where + `
ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	out := []WebhookSummary{}
	if err := h.SelectContext(ctx, &out, h.Rebind(query), args...); err != nil {
		return nil, storage.WrapError(err)
	}
	return out, nil
}

// Count returns how many webhooks List would return without paging.
func (WebhookRepo) Count(ctx context.Context, h storage.Handler, opts ListWebhooksOptions) (int64, error) {
	where, args := opts.where()
	var n int64
	if err := h.GetContext(ctx, &n, h.Rebind("SELECT COUNT(*) FROM webhooks WHERE "+where), args...); err != nil {
		return 0, storage.WrapError(err)
	}
	return n, nil
}

// Update writes the mutable fields of w. A token collision yields
// storage.ErrDuplicateKey; a missing or deleted row yields
// storage.ErrRecordNotFound.
func (WebhookRepo) Update(ctx context.Context, h storage.Handler, w *Webhook) error {
	w.UpdatedAt = storage.Now()
	query := h.Rebind(`UPDATE webhooks
SET token = ?, name = ?, visibility = ?, is_enabled = ?, owner_id = ?, session_id = ?, updated_at = ?
WHERE id = ? AND ` + notDeleted)
	res, err := h.ExecContext(ctx, query,
		w.Token, w.Name, w.Visibility, w.IsEnabled, w.OwnerID, w.SessionID, w.UpdatedAt, w.ID)
	if err != nil {
		return storage.WrapError(err)
	}
	return expectRow(res)
}

// SoftDelete marks the webhook deleted.
func (WebhookRepo) SoftDelete(ctx context.Context, h storage.Handler, id string) error {
	query := h.Rebind("UPDATE webhooks SET deleted_at = ? WHERE id = ? AND " + notDeleted)
	res, err := h.ExecContext(ctx, query, storage.Now(), id)
	if err != nil {
		return storage.WrapError(err)
	}
	return expectRow(res)
}
