package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestGuestMode(t *testing.T) {
	v, err := NewVerifier("", "")
	require.NoError(t, err)
	assert.False(t, v.Required())

	id, err := v.Verify("")
	require.NoError(t, err)
	assert.Equal(t, GuestID, id.Subject)
	assert.False(t, id.Authenticated)

	_, err = v.IssueToken("alice", "")
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier(secret, "manthan")
	require.NoError(t, err)

	token, err := v.IssueToken("alice", "Alice")
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, "Alice", id.Name)
	assert.True(t, id.Authenticated)
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(secret, "manthan")
	require.NoError(t, err)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, _ := NewVerifier("ffffffffffffffffffffffffffffffff", "manthan")
	foreign, err := other.IssueToken("alice", "")
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, _ := NewVerifier(secret, "someone-else")
	tok, err := wrongIssuer.IssueToken("alice", "")
	require.NoError(t, err)
	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "manthan",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	signed, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	unsigned, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierRejectsShortSecret(t *testing.T) {
	_, err := NewVerifier("short", "")
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
