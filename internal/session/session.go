// Package session manages the anonymous browser session: a random
// identifier carried in a signed, http-only cookie.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// CookieName is the anonymous session cookie.
const CookieName = "hooky_anon_session"

const idBytes = 16

var errInvalid = errors.New("invalid session cookie")

// Manager signs and verifies anonymous session cookies.
type Manager struct {
	key    []byte
	maxAge time.Duration
	secure bool
}

// NewManager derives the signing key from secret.
func NewManager(secret string, expiryDays int, secure bool) *Manager {
	key := blake3.Sum256([]byte("hooky anonymous session\x00" + secret))
	return &Manager{
		key:    key[:],
		maxAge: time.Duration(expiryDays) * 24 * time.Hour,
		secure: secure,
	}
}

// NewID returns a fresh 32 hex character session identifier.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

func (m *Manager) mac(id string) []byte {
	h, err := blake3.NewKeyed(m.key)
	if err != nil {
		// key is always 32 bytes
		panic(err)
	}
	_, _ = h.Write([]byte(id))
	return h.Sum(nil)
}

// Sign returns the cookie value for id.
func (m *Manager) Sign(id string) string {
	return id + "." + hex.EncodeToString(m.mac(id))
}

// Verify returns the session id carried by a cookie value. All failures
// return the same generic error.
func (m *Manager) Verify(value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || !validID(id) {
		return "", errInvalid
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return "", errInvalid
	}
	if subtle.ConstantTimeCompare(m.mac(id), got) != 1 {
		return "", errInvalid
	}
	return id, nil
}

// FromRequest returns the verified session id on r, if any.
func (m *Manager) FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	id, err := m.Verify(c.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

// Set writes the session cookie for id.
func (m *Manager) Set(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.Sign(id),
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		Expires:  time.Now().Add(m.maxAge),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
