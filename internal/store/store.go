package store

import (
	"strings"

	"github.com/google/uuid"
)

// notDeleted is the live-row predicate every read includes.
const notDeleted = "deleted_at IS NULL"

// Store groups the repositories.
type Store struct {
	Users     UserRepo
	Webhooks  WebhookRepo
	Requests  RequestRepo
	Responses ResponseConfigRepo
}

// New returns a Store. Repositories hold no state; every method takes the
// storage.Handler to run against so callers can compose them in a
// transaction.
func New() *Store {
	return &Store{}
}

// NewID returns a fresh row identifier.
func NewID() string {
	return uuid.NewString()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern for s.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
