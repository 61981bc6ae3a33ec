package auth

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/dukerupert/storefront/internal/model"
)

// LinkToken is the raw one-time login secret embedded in an emailed link.
type LinkToken string

type linkStore interface {
	Create(ctx context.Context, email string, now time.Time) (string, *model.MagicLink, error)
	GetByToken(ctx context.Context, token string) (*model.MagicLink, error)
	Claim(ctx context.Context, id int64, now time.Time) (bool, error)
}

type customerStore interface {
	GetOrCreateCustomer(ctx context.Context, email string) (*model.Principal, error)
}

// LinkIssuer issues and redeems single-use, time-limited login links.
type LinkIssuer struct {
	links      linkStore
	principals customerStore
	reserved   string
	now        func() time.Time
}

type LinkIssuerOption func(*LinkIssuer)

// WithLinkClock overrides the time source.
func WithLinkClock(now func() time.Time) LinkIssuerOption {
	return func(li *LinkIssuer) {
		li.now = now
	}
}

// WithReservedEmail refuses one-time links for addr.
func WithReservedEmail(addr string) LinkIssuerOption {
	return func(li *LinkIssuer) {
		if norm, err := NormalizeEmail(addr); err == nil {
			li.reserved = norm
		}
	}
}

func NewLinkIssuer(links linkStore, principals customerStore, opts ...LinkIssuerOption) *LinkIssuer {
	li := &LinkIssuer{
		links:      links,
		principals: principals,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(li)
	}
	return li
}

// Issue creates a new link for email and returns its raw token. It does not
// create a principal. The reserved admin address gets ErrReservedEmail.
func (li *LinkIssuer) Issue(ctx context.Context, email string) (LinkToken, error) {
	addr, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if li.isReserved(addr) {
		return "", ErrReservedEmail
	}
	token, _, err := li.links.Create(ctx, addr, li.now())
	if err != nil {
		return "", oops.In("magiclink").With("email", addr).Wrapf(err, "issue link")
	}
	return LinkToken(token), nil
}

// Verify consumes token and returns the id of the principal it signs in,
// creating a customer for first-time emails. Expiry is checked before use so
// an expired link reports ErrExpired even if it was also consumed.
func (li *LinkIssuer) Verify(ctx context.Context, token LinkToken) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	ml, err := li.links.GetByToken(ctx, string(token))
	if err != nil {
		return 0, oops.In("magiclink").Wrapf(err, "look up link")
	}
	if ml == nil {
		return 0, ErrInvalidToken
	}

	now := li.now()
	if now.After(ml.ExpiresAt) {
		return 0, ErrExpired
	}
	if ml.UsedAt != nil {
		return 0, ErrAlreadyUsed
	}
	if li.isReserved(ml.Email) {
		return 0, ErrForbidden
	}

	claimed, err := li.links.Claim(ctx, ml.ID, now)
	if err != nil {
		return 0, oops.In("magiclink").With("link_id", ml.ID).Wrapf(err, "claim link")
	}
	if !claimed {
		return 0, ErrAlreadyUsed
	}

	p, err := li.principals.GetOrCreateCustomer(ctx, ml.Email)
	if err != nil {
		return 0, oops.In("magiclink").With("email", ml.Email).Wrapf(err, "resolve principal")
	}
	return p.ID, nil
}

func (li *LinkIssuer) isReserved(addr string) bool {
	return li.reserved != "" && addr == li.reserved
}
