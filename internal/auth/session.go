package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims are issued by the identity provider after sign-in.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	return c != nil && c.Role == role
}

// Sessions signs and parses HS256 session tokens shared with the identity provider.
type Sessions struct {
	secret []byte
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), now: time.Now}
}

// Issue mints a token. Production tokens come from the identity provider;
// this is used by tedxctl and tests.
func (s *Sessions) Issue(email, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (s *Sessions) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	return claims, nil
}
