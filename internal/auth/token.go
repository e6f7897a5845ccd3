// Package auth issues and verifies the signed bearer tokens used to
// authenticate relay requests, and hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalid is returned for any token that must not be trusted.
	ErrInvalid = errors.New("invalid token")
	// ErrMalformed is returned when the token cannot be parsed.
	ErrMalformed = fmt.Errorf("%w: malformed", ErrInvalid)
	// ErrInvalidSignature is returned when the signature does not match the key.
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalid)
	// ErrExpired is returned for a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
)

// TokenService is stateless: verification depends only on the token, the
// current time and the signing key.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenService(key []byte, ttl time.Duration) *TokenService {
	return &TokenService{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
}

func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue returns a signed token for handle and the time it expires.
func (ts *TokenService) Issue(handle string) (string, time.Time, error) {
	if handle == "" {
		return "", time.Time{}, fmt.Errorf("issue token: empty handle")
	}

	// NumericDate carries whole seconds; the returned expiry must match the
	// embedded one.
	now := ts.now().Truncate(time.Second)
	exp := now.Add(ts.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   handle,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, exp, nil
}

// Verify checks the signature and the validity window of tokenString and
// returns the embedded handle.
func (ts *TokenService) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(t *jwt.Token) (interface{}, error) {
			return ts.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return "", classify(err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	return claims.Subject, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}
