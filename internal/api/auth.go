package api

import (
	"net/http"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/auth"
)

// callerMiddleware attaches the access.Caller for r: the user named by a
// valid session token, and the anonymous session named by a valid cookie.
// Invalid credentials are ignored rather than rejected; handlers decide
// whether they need an identity.
func (s *Server) callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID, sessionID string
		if tok, ok := auth.TokenFromRequest(r); ok {
			if uid, ok := s.deps.Users.Authenticate(r.Context(), tok); ok {
				userID = uid
			}
		}
		if sid, ok := s.deps.Sessions.FromRequest(r); ok {
			sessionID = sid
		}

		ctx := access.WithCaller(r.Context(), access.NewCaller(userID, sessionID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerOf(r *http.Request) access.Caller {
	return access.CallerFromContext(r.Context())
}
