package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken(t *testing.T) {
	email := "doc@hillvalley.edu"
	f := NewFingerprinter("secret")

	t.Run("stable for the same key", func(t *testing.T) {
		assert.Equal(t, f.Token(&email), NewFingerprinter("secret").Token(&email))
	})

	t.Run("depends on the key", func(t *testing.T) {
		assert.NotEqual(t, f.Token(&email), NewFingerprinter("other").Token(&email))
	})

	t.Run("does not contain the value", func(t *testing.T) {
		token := f.Token(&email)
		assert.Len(t, token, 16)
		assert.NotContains(t, token, "hillvalley")
	})

	t.Run("absent value has no token", func(t *testing.T) {
		empty := ""
		assert.Empty(t, f.Token(nil))
		assert.Empty(t, f.Token(&empty))
	})

	t.Run("long keys are accepted", func(t *testing.T) {
		long := NewFingerprinter(strings.Repeat("k", 200))
		assert.Len(t, long.Token(&email), 16)
	})
}
