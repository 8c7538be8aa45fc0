package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mattjoyce/hooky/internal/storage"
)

// RequestRepo persists captured requests.
type RequestRepo struct{}

const requestColumns = "id, webhook_id, webhook_token, method, headers, query_params, body, captured_at, source_ip, user_agent"

// RequestFilter narrows a request listing.
type RequestFilter struct {
	Method string
	Limit  int
	Offset int
}

// Create inserts r, assigning an id and capture time when unset.
func (RequestRepo) Create(ctx context.Context, h storage.Handler, r *CapturedRequest) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CapturedAt.IsZero() {
		r.CapturedAt = storage.Now()
	}
	if r.Headers == nil {
		r.Headers = StringMap{}
	}
	if r.QueryParams == nil {
		r.QueryParams = StringMap{}
	}

	query := h.Rebind(`INSERT INTO requests (id, webhook_id, webhook_token, method, headers, query_params, body, captured_at, source_ip, user_agent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := h.ExecContext(ctx, query,
		r.ID, r.WebhookID, r.WebhookToken, r.Method, r.Headers, r.QueryParams, r.Body, r.CapturedAt, r.SourceIP, r.UserAgent)
	return storage.WrapError(err)
}

// Get returns the live request id belonging to webhookID.
func (RequestRepo) Get(ctx context.Context, h storage.Handler, webhookID, id string) (*CapturedRequest, error) {
	var r CapturedRequest
	query := h.Rebind("SELECT " + requestColumns + " FROM requests WHERE id = ? AND webhook_id = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &r, query, id, webhookID); err != nil {
		return nil, storage.WrapError(err)
	}
	return &r, nil
}

func (f RequestFilter) where(webhookID string) (string, []interface{}) {
	clauses := []string{notDeleted, "webhook_id = ?"}
	args := []interface{}{webhookID}
	if m := strings.TrimSpace(f.Method); m != "" {
		clauses = append(clauses, "method = ?")
		args = append(args, strings.ToUpper(m))
	}
	return strings.Join(clauses, " AND "), args
}

// List returns live requests for webhookID, newest first.
func (RequestRepo) List(ctx context.Context, h storage.Handler, webhookID string, f RequestFilter) ([]CapturedRequest, error) {
	where, args := f.where(webhookID)
	query := "SELECT " + requestColumns + " FROM requests WHERE " + where + " ORDER BY captured_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	out := []CapturedRequest{}
	if err := h.SelectContext(ctx, &out, h.Rebind(query), args...); err != nil {
		return nil, storage.WrapError(err)
	}
	return out, nil
}

// Count returns the number of live requests List would return unpaged.
func (RequestRepo) Count(ctx context.Context, h storage.Handler, webhookID string, f RequestFilter) (int64, error) {
	where, args := f.where(webhookID)
	var n int64
	if err := h.GetContext(ctx, &n, h.Rebind("SELECT COUNT(*) FROM requests WHERE "+where), args...); err != nil {
		return 0, storage.WrapError(err)
	}
	return n, nil
}

// SoftDeleteByWebhook marks every live request of webhookID deleted.
func (RequestRepo) SoftDeleteByWebhook(ctx context.Context, h storage.Handler, webhookID string) (int64, error) {
	query := h.Rebind("UPDATE requests SET deleted_at = ? WHERE webhook_id = ? AND " + notDeleted)
	res, err := h.ExecContext(ctx, query, storage.Now(), webhookID)
	return affected(res, err)
}

// SoftDeleteAnonymousBefore marks deleted every live request captured before
// cutoff that belongs to a live webhook without an owner.
func (RequestRepo) SoftDeleteAnonymousBefore(ctx context.Context, h storage.Handler, cutoff time.Time) (int64, error) {
	query := h.Rebind(`UPDATE requests SET deleted_at = ?
WHERE ` + notDeleted + ` AND captured_at < ?
  AND webhook_id IN (SELECT id FROM webhooks WHERE owner_id IS NULL AND ` + notDeleted + `)`)
	res, err := h.ExecContext(ctx, query, storage.Now(), storage.NewTime(cutoff))
	return affected(res, err)
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, storage.WrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// expectRow maps a zero-row update to storage.ErrRecordNotFound.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}
