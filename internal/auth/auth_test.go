package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIssueAndVerify(t *testing.T) {
	tok := NewTokens("s3cret", time.Hour)
	raw, err := tok.Issue("admin")
	require.NoError(t, err)

	claims, err := tok.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.UserID)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestVerifyRejects(t *testing.T) {
	tok := NewTokens("s3cret", time.Hour)
	good, err := tok.Issue("admin")
	require.NoError(t, err)

	other, err := NewTokens("different", time.Hour).Issue("admin")
	require.NoError(t, err)

	expired := NewTokens("s3cret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue("admin")
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"tampered":  good + "x",
		"wrong key": other,
		"expired":   stale,
		"issuer":    foreign,
		"no expiry": noExpiry,
		"alg none":  "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ1c2VySWQiOiJhZG1pbiJ9.",
	} {
		_, err := tok.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestPasswordsCheckAndChange(t *testing.T) {
	p, err := newPasswords("changeme", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, p.Check("changeme"))
	assert.False(t, p.Check("Changeme"))
	assert.False(t, p.Check(""))

	assert.ErrorIs(t, p.Change("changeme", "short"), ErrWeakPassword)
	assert.ErrorIs(t, p.Change("wrong-one", "long-enough"), ErrWrongPassword)
	assert.True(t, p.Check("changeme"), "failed changes keep the old password")

	require.NoError(t, p.Change("changeme", "long-enough"))
	assert.True(t, p.Check("long-enough"))
	assert.False(t, p.Check("changeme"))
}
