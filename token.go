package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/auralis-app/authcore/permission"
)

// accessClaims is the payload of a minted access token. The shape
// matches what the remote identity service puts in its access_token so
// hybrid callers see one format regardless of backend.
type accessClaims struct {
	UID      string `json:"uid"`
	SID      string `json:"sid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// tokenManager mints and verifies HS256 access tokens for locally
// issued sessions.
type tokenManager struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func newTokenManager(key []byte, issuer string, ttl time.Duration) (*tokenManager, error) {
	if len(key) < 32 {
		return nil, errors.New("token signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	return &tokenManager{key: key, issuer: issuer, ttl: ttl}, nil
}

func (m *tokenManager) mint(userID, sessionID, username string, role permission.Role, now time.Time) (string, error) {
	claims := accessClaims{
		UID:      userID,
		SID:      sessionID,
		Username: username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (m *tokenManager) verify(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}
