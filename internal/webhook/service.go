package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
	"github.com/mattjoyce/hooky/internal/token"
)

// bootstrapAttempts bounds token regeneration in Bootstrap.
const bootstrapAttempts = 10

const (
	msgTokenRequired  = "Token is required"
	msgTokenInUse     = "Token already in use"
	msgBadVisibility  = "Visibility must be private or public"
	msgNoSession      = "No anonymous session found"
	msgNoUnclaimed    = "No unclaimed webhook found for this session"
	msgRequestMissing = "Request not found"
)

// Service implements webhook management.
type Service struct {
	db      *storage.DB
	store   *store.Store
	access  *access.Resolver
	replies *response.Resolver
	cache   *tokenCache
	logger  *slog.Logger

	generate func() (string, error)
}

// NewService builds a Service.
func NewService(db *storage.DB, s *store.Store, replies *response.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		store:    s,
		access:   access.NewResolver(db, s),
		replies:  replies,
		cache:    newTokenCache(CacheSize, CacheTTL),
		logger:   logger,
		generate: token.Generate,
	}
}

// Access returns the resolver the service checks callers with.
func (s *Service) Access() *access.Resolver {
	return s.access
}

// Create makes a webhook owned by the calling user, or by the caller's
// anonymous session when nobody is logged in.
func (s *Service) Create(ctx context.Context, c access.Caller, in CreateInput) (*store.Webhook, error) {
	owner, err := ownerFor(c)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(in.Token)
	if raw == "" {
		return nil, access.BadRequest(msgTokenRequired)
	}
	tok := token.Sanitize(raw)
	if err := s.checkToken(ctx, tok); err != nil {
		return nil, err
	}

	w := &store.Webhook{
		Token:      tok,
		Name:       trimmed(in.Name),
		Visibility: store.VisibilityPrivate,
		IsEnabled:  true,
	}
	if in.Visibility != nil {
		if err := validVisibility(*in.Visibility); err != nil {
			return nil, err
		}
		w.Visibility = *in.Visibility
	}
	access.Apply(w, owner)

	if err := s.store.Webhooks.Create(ctx, s.db, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, access.Conflict(msgTokenInUse)
		}
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	s.cache.Delete(w.Token)

	s.logger.Info("webhook created", "webhook_id", w.ID, "token", w.Token, "anonymous", w.OwnerID == nil)
	return w, nil
}

func ownerFor(c access.Caller) (access.Ownership, error) {
	if uid, ok := c.UserID(); ok {
		return access.Owned{UserID: uid}, nil
	}
	if sid, ok := c.SessionID(); ok {
		return access.Anonymous{SessionID: sid}, nil
	}
	return nil, access.Unauthorized()
}

// checkToken validates tok and rejects it when a live webhook holds it.
func (s *Service) checkToken(ctx context.Context, tok string) error {
	if ok, reason := token.Validate(tok); !ok {
		return access.Validation("%s", reason)
	}
	taken, err := s.store.Webhooks.TokenExists(ctx, s.db, tok)
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if taken {
		return access.Conflict(msgTokenInUse)
	}
	return nil
}

func validVisibility(v string) error {
	if v != store.VisibilityPrivate && v != store.VisibilityPublic {
		return access.Validation(msgBadVisibility)
	}
	return nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// List pages through the calling user's webhooks.
func (s *Service) List(ctx context.Context, c access.Caller, in ListInput) (Page[store.WebhookSummary], error) {
	uid, err := s.access.ResolveAuth(c)
	if err != nil {
		return Page[store.WebhookSummary]{}, err
	}
	page, size := normalizePage(in.Page, in.Size)

	opts := store.ListWebhooksOptions{OwnerID: uid, Search: in.Search}
	total, err := s.store.Webhooks.Count(ctx, s.db, opts)
	if err != nil {
		return Page[store.WebhookSummary]{}, fmt.Errorf("count webhooks: %w", err)
	}
	opts.Limit, opts.Offset = size, (page-1)*size
	items, err := s.store.Webhooks.List(ctx, s.db, opts)
	if err != nil {
		return Page[store.WebhookSummary]{}, fmt.Errorf("list webhooks: %w", err)
	}
	return Page[store.WebhookSummary]{Data: items, Pagination: newPagination(total, page, size)}, nil
}

// Get returns a webhook the caller may view, with its request count and
// reply.
func (s *Service) Get(ctx context.Context, c access.Caller, id string) (*Detail, error) {
	w, err := s.access.ResolveViewability(ctx, id, c)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Requests.Count(ctx, s.db, w.ID, store.RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	reply, err := s.replies.Get(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	return &Detail{Webhook: *w, RequestCount: count, Response: reply}, nil
}

// Update applies in to a webhook the caller manages. A new token is
// validated and must be free.
func (s *Service) Update(ctx context.Context, c access.Caller, id string, in UpdateInput) (*store.Webhook, error) {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return nil, err
	}
	oldToken := w.Token

	if in.Token != nil {
		raw := strings.TrimSpace(*in.Token)
		if raw == "" {
			return nil, access.BadRequest(msgTokenRequired)
		}
		tok := token.Sanitize(raw)
		if tok != w.Token {
			if err := s.checkToken(ctx, tok); err != nil {
				return nil, err
			}
			w.Token = tok
		}
	}
	if in.Visibility != nil {
		if err := validVisibility(*in.Visibility); err != nil {
			return nil, err
		}
		w.Visibility = *in.Visibility
	}
	if in.Name != nil {
		w.Name = trimmed(in.Name)
	}
	if in.Enabled != nil {
		w.IsEnabled = *in.Enabled
	}

	if err := s.store.Webhooks.Update(ctx, s.db, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, access.Conflict(msgTokenInUse)
		}
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	s.cache.Delete(oldToken, w.Token)
	return w, nil
}

// Delete soft-deletes a webhook the caller manages together with its
// requests and reply config.
func (s *Service) Delete(ctx context.Context, c access.Caller, id string) error {
	w, err := s.access.ResolveOwnership(ctx, id, c)
	if err != nil {
		return err
	}

	err = s.db.TransactionContext(ctx, func(tx *storage.Tx) error {
		if _, err := s.store.Requests.SoftDeleteByWebhook(ctx, tx, w.ID); err != nil {
			return err
		}
		if _, err := s.store.Responses.SoftDeleteByWebhook(ctx, tx, w.ID); err != nil {
			return err
		}
		return s.store.Webhooks.SoftDelete(ctx, tx, w.ID)
	})
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	s.cache.Delete(w.Token)

	s.logger.Info("webhook deleted", "webhook_id", w.ID, "token", w.Token)
	return nil
}

// Claim transfers the unclaimed webhook of the caller's anonymous session to
// the calling user.
func (s *Service) Claim(ctx context.Context, c access.Caller) (*store.Webhook, error) {
	uid, err := s.access.ResolveAuth(c)
	if err != nil {
		return nil, err
	}
	sid, ok := c.SessionID()
	if !ok {
		return nil, access.BadRequest(msgNoSession)
	}

	var claimed *store.Webhook
	err = s.db.TransactionContext(ctx, func(tx *storage.Tx) error {
		w, err := s.store.Webhooks.FindUnclaimedBySession(ctx, tx, sid)
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				return access.NotFound(msgNoUnclaimed)
			}
			return err
		}
		access.Apply(w, access.Owned{UserID: uid})
		if err := s.store.Webhooks.Update(ctx, tx, w); err != nil {
			return err
		}
		claimed = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Delete(claimed.Token)

	s.logger.Info("webhook claimed", "webhook_id", claimed.ID, "user_id", uid)
	return claimed, nil
}

// Unclaimed returns the caller's unclaimed anonymous webhook, or nil.
func (s *Service) Unclaimed(ctx context.Context, c access.Caller) (*store.Webhook, error) {
	sid, ok := c.SessionID()
	if !ok {
		return nil, nil
	}
	w, err := s.store.Webhooks.FindUnclaimedBySession(ctx, s.db, sid)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find unclaimed webhook: %w", err)
	}
	return w, nil
}

// Bootstrap returns the unclaimed webhook of sessionID, creating one with a
// generated token when there is none. created reports which happened.
func (s *Service) Bootstrap(ctx context.Context, sessionID string) (w *store.Webhook, created bool, err error) {
	if sessionID == "" {
		return nil, false, access.BadRequest(msgNoSession)
	}
	existing, err := s.Unclaimed(ctx, access.NewCaller("", sessionID))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	for attempt := 1; attempt <= bootstrapAttempts; attempt++ {
		tok, err := s.generate()
		if err != nil {
			return nil, false, fmt.Errorf("generate token: %w", err)
		}
		taken, err := s.store.Webhooks.TokenExists(ctx, s.db, tok)
		if err != nil {
			return nil, false, fmt.Errorf("check token: %w", err)
		}
		if taken {
			continue
		}

		w = &store.Webhook{Token: tok, Visibility: store.VisibilityPrivate, IsEnabled: true}
		access.Apply(w, access.Anonymous{SessionID: sessionID})
		err = s.store.Webhooks.Create(ctx, s.db, w)
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.logger.Debug("generated token collided, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("create webhook: %w", err)
		}
		s.logger.Info("anonymous webhook created", "webhook_id", w.ID, "token", w.Token)
		return w, true, nil
	}
	return nil, false, fmt.Errorf("no free token after %d attempts", bootstrapAttempts)
}

// LookupByToken returns the live webhook for tok, enabled or not. It
// returns storage.ErrRecordNotFound when there is none.
func (s *Service) LookupByToken(ctx context.Context, tok string) (*store.Webhook, error) {
	if w, ok := s.cache.Get(tok); ok {
		return w, nil
	}
	gen := s.cache.Generation()
	w, err := s.store.Webhooks.GetByToken(ctx, s.db, tok)
	if err != nil {
		return nil, err
	}
	s.cache.Fill(w, gen)
	return w, nil
}
