package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

// ListRequests pages through the captured requests of a webhook the caller
// may view, newest first.
func (s *Service) ListRequests(ctx context.Context, c access.Caller, id string, q RequestQuery) (Page[store.CapturedRequest], error) {
	w, err := s.access.ResolveViewability(ctx, id, c)
	if err != nil {
		return Page[store.CapturedRequest]{}, err
	}
	page, size := normalizePage(q.Page, q.Size)

	filter := store.RequestFilter{Method: strings.ToUpper(strings.TrimSpace(q.Method))}
	total, err := s.store.Requests.Count(ctx, s.db, w.ID, filter)
	if err != nil {
		return Page[store.CapturedRequest]{}, fmt.Errorf("count requests: %w", err)
	}
	filter.Limit, filter.Offset = size, (page-1)*size
	items, err := s.store.Requests.List(ctx, s.db, w.ID, filter)
	if err != nil {
		return Page[store.CapturedRequest]{}, fmt.Errorf("list requests: %w", err)
	}
	return Page[store.CapturedRequest]{Data: items, Pagination: newPagination(total, page, size)}, nil
}

// GetRequest returns one captured request of a webhook the caller may view.
func (s *Service) GetRequest(ctx context.Context, c access.Caller, id, requestID string) (*store.CapturedRequest, error) {
	w, err := s.access.ResolveViewability(ctx, id, c)
	if err != nil {
		return nil, err
	}
	r, err := s.store.Requests.Get(ctx, s.db, w.ID, requestID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, access.NotFound(msgRequestMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// ClearRequests soft-deletes every captured request of a webhook the caller
// manages and returns how many went.
func (s *Service) ClearRequests(ctx context.Context, c access.Caller, id string) (int64, error) {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return 0, err
	}
	n, err := s.store.Requests.SoftDeleteByWebhook(ctx, s.db, w.ID)
	if err != nil {
		return 0, fmt.Errorf("clear requests: %w", err)
	}
	s.logger.Info("requests cleared", "webhook_id", w.ID, "count", n)
	return n, nil
}

// GetResponse returns the reply config of a webhook the caller manages.
func (s *Service) GetResponse(ctx context.Context, c access.Caller, id string) (response.Config, error) {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return response.Config{}, err
	}
	return s.replies.Get(ctx, w.ID)
}

// PutResponse validates and applies u to the reply config of a webhook the
// caller manages.
func (s *Service) PutResponse(ctx context.Context, c access.Caller, id string, u response.Update) (response.Config, error) {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return response.Config{}, err
	}
	return s.replies.Upsert(ctx, w.ID, u)
}

// ResetResponse restores the default reply of a webhook the caller manages.
func (s *Service) ResetResponse(ctx context.Context, c access.Caller, id string) error {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return err
	}
	return s.replies.Reset(ctx, w.ID)
}
