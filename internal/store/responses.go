package store

import (
	"context"

	"github.com/mattjoyce/hooky/internal/storage"
)

// ResponseConfigRepo persists per-webhook response overrides.
type ResponseConfigRepo struct{}

const responseColumns = "id, webhook_id, status_code, headers, body, content_type, created_at, updated_at"

// GetByWebhook returns the live config for webhookID.
func (ResponseConfigRepo) GetByWebhook(ctx context.Context, h storage.Handler, webhookID string) (*ResponseConfig, error) {
	var c ResponseConfig
	query := h.Rebind("SELECT " + responseColumns + " FROM response_configs WHERE webhook_id = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &c, query, webhookID); err != nil {
		return nil, storage.WrapError(err)
	}
	return &c, nil
}

// Create inserts c. A second live config for the same webhook yields
// storage.ErrDuplicateKey.
func (ResponseConfigRepo) Create(ctx context.Context, h storage.Handler, c *ResponseConfig) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Headers == nil {
		c.Headers = StringMap{}
	}
	now := storage.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	query := h.Rebind(`INSERT INTO response_configs (id, webhook_id, status_code, headers, body, content_type, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := h.ExecContext(ctx, query,
		c.ID, c.WebhookID, c.StatusCode, c.Headers, c.Body, c.ContentType, c.CreatedAt, c.UpdatedAt)
	return storage.WrapError(err)
}

// Update writes every mutable field of c.
func (ResponseConfigRepo) Update(ctx context.Context, h storage.Handler, c *ResponseConfig) error {
	c.UpdatedAt = storage.Now()
	query := h.Rebind(`UPDATE response_configs
SET status_code = ?, headers = ?, body = ?, content_type = ?, updated_at = ?
WHERE id = ? AND ` + notDeleted)
	res, err := h.ExecContext(ctx, query, c.StatusCode, c.Headers, c.Body, c.ContentType, c.UpdatedAt, c.ID)
	if err != nil {
		return storage.WrapError(err)
	}
	return expectRow(res)
}

// SoftDeleteByWebhook marks the live config of webhookID deleted. It reports
// whether a row was affected.
func (ResponseConfigRepo) SoftDeleteByWebhook(ctx context.Context, h storage.Handler, webhookID string) (bool, error) {
	query := h.Rebind("UPDATE response_configs SET deleted_at = ? WHERE webhook_id = ? AND " + notDeleted)
	res, err := h.ExecContext(ctx, query, storage.Now(), webhookID)
	n, err := affected(res, err)
	return n > 0, err
}
