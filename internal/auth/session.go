package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/dukerupert/storefront/internal/model"
)

const (
	// SessionTTL is the lifetime of a session token and its cookie.
	SessionTTL = 30 * 24 * time.Hour

	sessionIssuer = "storefront"
)

// SessionToken is a signed bearer credential. Callers pass it through
// without inspecting it.
type SessionToken string

type principalReader interface {
	GetByID(ctx context.Context, id int64) (*model.Principal, error)
}

// Sessions mints and verifies stateless session tokens (HS256 JWTs) and
// gates requests on them.
type Sessions struct {
	secret     []byte
	ttl        time.Duration
	principals principalReader
	now        func() time.Time
}

type SessionsOption func(*Sessions)

// WithSessionClock overrides the time source for issuance and expiry checks.
func WithSessionClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		s.now = now
	}
}

// WithSessionTTL overrides SessionTTL.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		s.ttl = ttl
	}
}

func NewSessions(secret []byte, principals principalReader, opts ...SessionsOption) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	s := &Sessions{
		secret:     secret,
		ttl:        SessionTTL,
		principals: principals,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints a token for principalID and returns it with its expiry.
func (s *Sessions) Issue(principalID int64) (SessionToken, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   strconv.FormatInt(principalID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.In("session").With("principal_id", principalID).Wrapf(err, "sign session token")
	}
	return SessionToken(signed), expiresAt, nil
}

// subject returns the principal id carried by a valid token.
func (s *Sessions) subject(token SessionToken) (int64, bool) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)

	var claims jwt.RegisteredClaims
	parsed, err := parser.ParseWithClaims(string(token), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, false
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Verify returns the principal a token belongs to, read fresh from the
// store. A bad, expired, or orphaned token yields (nil, nil); only store
// failures are errors.
func (s *Sessions) Verify(ctx context.Context, token SessionToken) (*model.Principal, error) {
	if token == "" {
		return nil, nil
	}
	id, ok := s.subject(token)
	if !ok {
		return nil, nil
	}
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, oops.In("session").With("principal_id", id).Wrapf(err, "load session principal")
	}
	return p, nil
}

// RequireAuth is Verify with a missing session reported as ErrUnauthorized.
func (s *Sessions) RequireAuth(ctx context.Context, token SessionToken) (*model.Principal, error) {
	p, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// RequireAdmin additionally requires the admin role, failing with
// ErrForbidden otherwise.
func (s *Sessions) RequireAdmin(ctx context.Context, token SessionToken) (*model.Principal, error) {
	p, err := s.RequireAuth(ctx, token)
	if err != nil {
		return nil, err
	}
	if !hasAdminRole(p) {
		return nil, ErrForbidden
	}
	return p, nil
}
