package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired indicates the token was valid but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed indicates the token could not be parsed or its
	// signature did not validate.
	ErrTokenMalformed = errors.New("token malformed")
)

// DefaultTokenTTL applies when no validity duration is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the payload embedded in issued bearer tokens. Claims are trusted
// for the lifetime of the token; there is no revocation before expiry.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// TokenIssuer mints and verifies HMAC-signed bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token validity duration.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token carrying the identity claims with an absolute expiry
// of now plus the configured TTL.
func (t *TokenIssuer) Issue(userID, email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		UserID: userID,
		Email:  email,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses and validates a presented token string, returning the
// embedded claims unchanged on success. Expiry is reported as
// ErrTokenExpired; every other failure (bad signature, unexpected algorithm,
// garbage input) is ErrTokenMalformed.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
