package access

import "context"

// Caller is who is making a request: possibly an authenticated user,
// possibly the holder of an anonymous session, possibly both or neither.
type Caller struct {
	userID    string
	sessionID string
}

// Public is a caller with no identity.
var Public = Caller{}

// NewCaller builds a caller; empty strings mean absent.
func NewCaller(userID, sessionID string) Caller {
	return Caller{userID: userID, sessionID: sessionID}
}

// UserID returns the authenticated user, if any.
func (c Caller) UserID() (string, bool) {
	return c.userID, c.userID != ""
}

// SessionID returns the anonymous session, if any.
func (c Caller) SessionID() (string, bool) {
	return c.sessionID, c.sessionID != ""
}

// WithSession returns a copy of c holding sessionID.
func (c Caller) WithSession(sessionID string) Caller {
	c.sessionID = sessionID
	return c
}

type callerKey struct{}

// WithCaller stores c on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller on ctx, or Public.
func CallerFromContext(ctx context.Context) Caller {
	c, ok := ctx.Value(callerKey{}).(Caller)
	if !ok {
		return Public
	}
	return c
}
