package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoTokenRoundTrip(t *testing.T) {
	m := NewManager("test-signing-key", time.Minute)

	tok, err := m.GeneratePhotoToken("evt-123")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := m.ValidatePhotoToken(tok, "evt-123")
	require.NoError(t, err)
	assert.Equal(t, "evt-123", claims.EventID)
	assert.Equal(t, ScopePhoto, claims.Scope)
	assert.NotEmpty(t, claims.ID)
}

func TestPhotoTokenWrongEvent(t *testing.T) {
	m := NewManager("test-signing-key", time.Minute)

	tok, err := m.GeneratePhotoToken("evt-123")
	require.NoError(t, err)

	_, err = m.ValidatePhotoToken(tok, "evt-456")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPhotoTokenWrongKey(t *testing.T) {
	tok, err := NewManager("key-one", time.Minute).GeneratePhotoToken("evt-123")
	require.NoError(t, err)

	_, err = NewManager("key-two", time.Minute).ValidatePhotoToken(tok, "evt-123")
	assert.Error(t, err)
}

func TestPhotoTokenExpired(t *testing.T) {
	m := NewManager("test-signing-key", -time.Minute)

	tok, err := m.GeneratePhotoToken("evt-123")
	require.NoError(t, err)

	_, err = m.ValidatePhotoToken(tok, "evt-123")
	assert.Error(t, err)
}

func TestPhotoTokenRejectsNoneAlgorithm(t *testing.T) {
	m := NewManager("test-signing-key", time.Minute)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		EventID: "evt-123",
		Scope:   ScopePhoto,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ValidatePhotoToken(tok, "evt-123")
	assert.Error(t, err)
}

func TestPhotoTokenGarbage(t *testing.T) {
	m := NewManager("test-signing-key", time.Minute)

	_, err := m.ValidatePhotoToken("not.a.token", "evt-123")
	assert.Error(t, err)
}

func TestPhotoTokenDefaultTTL(t *testing.T) {
	m := NewManager("test-signing-key", 0)

	tok, err := m.GeneratePhotoToken("evt-123")
	require.NoError(t, err)

	claims, err := m.ValidatePhotoToken(tok, "evt-123")
	require.NoError(t, err)
	ttl := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, ttl, 14*time.Minute)
	assert.LessOrEqual(t, ttl, 15*time.Minute)
}
