package pkg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Generate(42, "alice")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Generate(1, "bob")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("a", time.Hour).Generate(1, "bob")
	require.NoError(t, err)

	_, err = NewTokenIssuer("b", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
