// Package access decides who may read or manage a webhook.
//
// Mutation and private reads go through ResolveOwnership, which answers
// Forbidden. Read-only viewing goes through ResolveViewability, which
// answers NotFound so that existence is not confirmed to strangers.
package access

import (
	"context"
	"errors"

	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

// Resolver looks webhooks up and checks them against a caller.
type Resolver struct {
	db    storage.Handler
	store *store.Store
}

func NewResolver(db storage.Handler, s *store.Store) *Resolver {
	return &Resolver{db: db, store: s}
}

// ResolveAuth returns the authenticated user id of c.
func (r *Resolver) ResolveAuth(c Caller) (string, error) {
	id, ok := c.UserID()
	if !ok {
		return "", Unauthorized()
	}
	return id, nil
}

// ResolveOwnership returns the webhook when c may manage it. Authenticated
// callers must be the owner; anonymous callers must hold the session of an
// unclaimed webhook.
func (r *Resolver) ResolveOwnership(ctx context.Context, webhookID string, c Caller) (*store.Webhook, error) {
	w, err := r.lookup(ctx, webhookID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, Forbidden()
		}
		return nil, err
	}
	if !CanManage(OwnershipOf(w), c) {
		return nil, Forbidden()
	}
	return w, nil
}

// ResolveViewability returns the webhook when c may view it: as owner, as
// anonymous session holder, or because it is public.
func (r *Resolver) ResolveViewability(ctx context.Context, webhookID string, c Caller) (*store.Webhook, error) {
	w, err := r.lookup(ctx, webhookID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, NotFound("Not found")
		}
		return nil, err
	}
	if !CanView(w, c) {
		return nil, NotFound("Not found")
	}
	return w, nil
}

func (r *Resolver) lookup(ctx context.Context, webhookID string) (*store.Webhook, error) {
	if webhookID == "" {
		return nil, storage.ErrRecordNotFound
	}
	return r.store.Webhooks.GetByID(ctx, r.db, webhookID)
}

// CanManage applies the ownership rule.
func CanManage(o Ownership, c Caller) bool {
	if uid, ok := c.UserID(); ok {
		owned, isOwned := o.(Owned)
		return isOwned && owned.UserID == uid
	}
	sid, ok := c.SessionID()
	if !ok {
		return false
	}
	anon, isAnon := o.(Anonymous)
	return isAnon && anon.SessionID == sid
}

// CanView applies the viewability rule.
func CanView(w *store.Webhook, c Caller) bool {
	if w.Visibility == store.VisibilityPublic {
		return true
	}
	switch o := OwnershipOf(w).(type) {
	case Owned:
		uid, ok := c.UserID()
		return ok && uid == o.UserID
	case Anonymous:
		sid, ok := c.SessionID()
		return ok && sid == o.SessionID
	case Unowned:
		return false
	}
	return false
}
