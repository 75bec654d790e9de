package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/userhub/apiserver/types"
)

// tokenTTL is the fixed lifetime of a session token.
const tokenTTL = time.Hour

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures
	// and unexpected signing methods.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the identity fields embedded in a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
}

// TokenService issues and verifies signed session tokens. The token is
// the entire session: no server-side state is kept, validity is decided
// by signature and expiry alone.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService constructs a TokenService. The secret is mandatory;
// there is no fallback value.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &TokenService{secret: []byte(secret), ttl: tokenTTL}, nil
}

// Issue signs a token carrying the user's identity, expiring after the
// service TTL.
func (s *TokenService) Issue(user types.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the signature and expiry of a token and returns its
// claims. Expired tokens yield ErrTokenExpired, every other failure
// yields ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.UserID < 1 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
