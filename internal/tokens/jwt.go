package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims scopes a token to a single resolved alarm photo. Handing out a
// photo URL hands out access to exactly that photo, nothing else.
type Claims struct {
	EventID string `json:"event_id"`
	Scope   string `json:"scope"`
	jwt.RegisteredClaims
}

const ScopePhoto = "photo"

type Manager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{signingKey: []byte(signingKey), ttl: ttl}
}

// GeneratePhotoToken mints a short-lived token granting access to one
// event's photo.
func (m *Manager) GeneratePhotoToken(eventID string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		EventID: eventID,
		Scope:   ScopePhoto,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(), // jti
			Subject:   eventID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "v1"

	return token.SignedString(m.signingKey)
}

// ValidatePhotoToken checks the token and that it grants the given event.
func (m *Manager) ValidatePhotoToken(tokenString, eventID string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != ScopePhoto || claims.EventID != eventID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
