package access

import "github.com/mattjoyce/hooky/internal/store"

// Ownership is the association between a webhook and whoever controls it.
// It is one of Owned, Anonymous or Unowned.
type Ownership interface {
	ownership()
}

// Owned webhooks belong to an authenticated user.
type Owned struct {
	UserID string
}

// Anonymous webhooks belong to whoever holds the session.
type Anonymous struct {
	SessionID string
}

// Unowned webhooks have neither; nobody may manage them.
type Unowned struct{}

func (Owned) ownership()     {}
func (Anonymous) ownership() {}
func (Unowned) ownership()   {}

// OwnershipOf reads the ownership variant of w. An owner always wins over a
// lingering session id.
func OwnershipOf(w *store.Webhook) Ownership {
	switch {
	case w.OwnerID != nil && *w.OwnerID != "":
		return Owned{UserID: *w.OwnerID}
	case w.SessionID != nil && *w.SessionID != "":
		return Anonymous{SessionID: *w.SessionID}
	default:
		return Unowned{}
	}
}

// Apply writes o onto w's persisted columns.
func Apply(w *store.Webhook, o Ownership) {
	switch o := o.(type) {
	case Owned:
		id := o.UserID
		w.OwnerID, w.SessionID = &id, nil
	case Anonymous:
		id := o.SessionID
		w.OwnerID, w.SessionID = nil, &id
	case Unowned:
		w.OwnerID, w.SessionID = nil, nil
	}
}
