package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		tok, err := Generate()
		require.NoError(t, err)
		assert.Len(t, tok, Length)
		for _, c := range tok {
			assert.True(t, strings.ContainsRune(alphabet, c), "unexpected char %q", c)
		}
		valid, _ := Validate(tok)
		assert.True(t, valid)
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Token", "my-token"},
		{"  spaced   out\tvalue ", "-spaced-out-value-"},
		{"Ünïcode_and$ymbols!", "ncodeandymbols"},
		{"already-ok-123", "already-ok-123"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"Hello World", "a  b\n\nc", "__--__", "MiXeD 123 ÄÖÜ", "x"}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		valid  bool
		reason string
	}{
		{"too short", "ab", false, "Token must be at least 3 characters"},
		{"empty", "", false, "Token must be at least 3 characters"},
		{"min length", "abc", true, ""},
		{"max length", strings.Repeat("a", 64), true, ""},
		{"too long", strings.Repeat("a", 65), false, "Token must be at most 64 characters"},
		{"uppercase", "ABC", false, "Token may only contain lowercase letters, numbers, and dashes"},
		{"underscore", "my_token", false, "Token may only contain lowercase letters, numbers, and dashes"},
		{"dashes", "my-token-1", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := Validate(tt.token)
			assert.Equal(t, tt.valid, valid)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestValidatedTokensAreWellFormed(t *testing.T) {
	for _, in := range []string{"Hello World", "a", "ok-token", strings.Repeat("Z ", 40), "123"} {
		tok := Sanitize(in)
		if valid, _ := Validate(tok); valid {
			assert.GreaterOrEqual(t, len(tok), MinLength)
			assert.LessOrEqual(t, len(tok), MaxLength)
			assert.False(t, disallowed.MatchString(tok))
		}
	}
}
