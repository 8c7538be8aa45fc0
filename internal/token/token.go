// Package token generates, sanitizes and validates the public identifier
// that forms a webhook's capture URL segment.
package token

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Length is the size of generated tokens.
	Length = 16
	// MinLength and MaxLength bound accepted tokens.
	MinLength = 3
	MaxLength = 64

	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9-]`)
)

// Generate returns a random token of Length characters drawn from the
// lowercase alphanumeric alphabet. Uniqueness is the caller's concern.
func Generate() (string, error) {
	// Rejection sampling keeps the distribution uniform over the alphabet.
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Sanitize lowercases input, turns whitespace runs into single dashes and
// drops everything outside [a-z0-9-]. It never fails.
func Sanitize(input string) string {
	s := strings.ToLower(input)
	s = whitespaceRun.ReplaceAllString(s, "-")
	return disallowed.ReplaceAllString(s, "")
}

// Validate reports whether t is an acceptable token. When it is not, reason
// is a message suitable for display.
func Validate(t string) (valid bool, reason string) {
	switch {
	case len(t) < MinLength:
		return false, fmt.Sprintf("Token must be at least %d characters", MinLength)
	case len(t) > MaxLength:
		return false, fmt.Sprintf("Token must be at most %d characters", MaxLength)
	case disallowed.MatchString(t):
		return false, "Token may only contain lowercase letters, numbers, and dashes"
	}
	return true, ""
}
