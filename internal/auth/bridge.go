package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/dukerupert/storefront/internal/model"
)

// BridgeToken lets a link from an order email sign its owner back in.
//
// It is an unkeyed digest of the order and owner ids with no expiry, so
// anyone who can enumerate principal ids for a known order id can forge it.
// Treat it as a deterrent, not a security boundary.
type BridgeToken string

type orderReader interface {
	GetByPublicID(ctx context.Context, publicID string) (*model.Order, error)
}

// DeriveBridgeToken is deterministic: the same pair always yields the same
// token.
func DeriveBridgeToken(orderPublicID string, principalID int64) BridgeToken {
	sum := sha256.Sum256([]byte(orderPublicID + ":" + strconv.FormatInt(principalID, 10)))
	return BridgeToken(base64.RawURLEncoding.EncodeToString(sum[:]))
}

// BridgeLink builds the auto sign-in URL for an order confirmation email.
func BridgeLink(baseURL, orderPublicID string, principalID int64) string {
	q := url.Values{}
	q.Set("order", orderPublicID)
	q.Set("token", string(DeriveBridgeToken(orderPublicID, principalID)))
	return baseURL + "/auth/order?" + q.Encode()
}

// Bridge redeems order links. Redemption is repeatable and never fails
// loudly: any problem means "no session".
type Bridge struct {
	orders orderReader
	logger *slog.Logger
}

func NewBridge(orders orderReader, logger *slog.Logger) *Bridge {
	return &Bridge{orders: orders, logger: logger}
}

// Redeem returns the owner of the order when supplied matches the token
// derived for it.
func (b *Bridge) Redeem(ctx context.Context, orderPublicID, supplied string) (int64, bool) {
	if orderPublicID == "" || supplied == "" {
		return 0, false
	}
	order, err := b.orders.GetByPublicID(ctx, orderPublicID)
	if err != nil {
		b.logger.Error("bridge order lookup", "order", orderPublicID, "error", err)
		return 0, false
	}
	if order == nil {
		return 0, false
	}

	expected := DeriveBridgeToken(order.PublicID, order.PrincipalID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) != 1 {
		return 0, false
	}
	return order.PrincipalID, true
}
