// Package auth provides the bearer-token codec, password hashing and the
// HTTP middleware that puts the authenticated identity into the request
// context.
//
// Tokens are HS256 JWTs:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"iss":"contacts-api","sub":"a@x.com","iat":...,"exp":...}
//
// The signing secret comes from the TokenConfig built at startup. It is
// never rotated while the process runs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/contacts-api/internal/apperror"
)

// DefaultIssuer is written to and required in the "iss" claim.
const DefaultIssuer = "contacts-api"

// minSecretLength guards against trivially guessable signing keys.
const minSecretLength = 16

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret string
	Issuer string
}

// Claims is the decoded payload of a bearer token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService signs and verifies bearer tokens.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customises a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now, for tests that need to cross an expiry.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService from cfg.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(cfg TokenConfig, opts ...Option) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	s := &TokenService{
		secret: []byte(cfg.Secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates and signs a token for subject that expires ttl from now.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now()

	c := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Decode parses and verifies a token string.
//
// Any refusal is an apperror.ErrInvalidToken: bad signature, malformed
// structure, unexpected algorithm or issuer, missing expiry, or an expiry
// that is not strictly in the future. A token without a subject decodes
// successfully; deciding what an empty subject means is the caller's job.
func (s *TokenService) Decode(tokenStr string) (*Claims, error) {
	var rc jwt.RegisteredClaims

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&rc,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.InvalidToken("token expired")
		}
		return nil, apperror.InvalidToken(err.Error())
	}
	if !token.Valid {
		return nil, apperror.InvalidToken("token not valid")
	}

	claims := &Claims{Subject: rc.Subject}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}

	return claims, nil
}
