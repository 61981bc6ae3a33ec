package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dukerupert/storefront/internal/auth"
	"github.com/dukerupert/storefront/internal/metrics"
	"github.com/dukerupert/storefront/internal/model"
	"github.com/dukerupert/storefront/internal/store"
	"github.com/dukerupert/storefront/internal/websocket"
)

type linkMailer interface {
	SendMagicLink(ctx context.Context, toEmail, token string) error
}

type eventPublisher interface {
	Publish(ev websocket.Event)
}

// AuthHandler serves the sign-in endpoints: one-time links, the admin
// credential login, order email links, and the session itself.
type AuthHandler struct {
	links      *auth.LinkIssuer
	admin      *auth.Authenticator
	sessions   *auth.Sessions
	cookies    *auth.CookieTransport
	bridge     *auth.Bridge
	principals *store.PrincipalStore
	mailer     linkMailer
	metrics    *metrics.Auth
	events     eventPublisher
	logger     *slog.Logger
}

func NewAuthHandler(
	links *auth.LinkIssuer,
	admin *auth.Authenticator,
	sessions *auth.Sessions,
	cookies *auth.CookieTransport,
	bridge *auth.Bridge,
	principals *store.PrincipalStore,
	mailer linkMailer,
	m *metrics.Auth,
	events eventPublisher,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		links:      links,
		admin:      admin,
		sessions:   sessions,
		cookies:    cookies,
		bridge:     bridge,
		principals: principals,
		mailer:     mailer,
		metrics:    m,
		events:     events,
		logger:     logger,
	}
}

// RequestLink mails a one-time sign-in link. The response is the same
// whether or not the address belongs to anyone.
func (h *AuthHandler) RequestLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	addr, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	token, err := h.links.Issue(r.Context(), addr)
	if errors.Is(err, auth.ErrReservedEmail) {
		h.logger.Warn("sign-in link refused for admin address", "remote", r.RemoteAddr)
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.metrics.LinkIssued()
	h.events.Publish(websocket.NewEvent(websocket.ActionLinkIssued, "", nil))

	if err := h.mailer.SendMagicLink(r.Context(), addr, string(token)); err != nil {
		h.logger.Error("send sign-in link", "error", err)
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyLink redeems a one-time link and starts a session.
func (h *AuthHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	id, err := h.links.Verify(r.Context(), auth.LinkToken(req.Token))
	if err != nil {
		h.metrics.LinkVerified(linkResult(err))
		WriteError(w, h.logger, err)
		return
	}
	h.metrics.LinkVerified(metrics.ResultOK)

	p, err := h.principals.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if p == nil {
		WriteError(w, h.logger, errors.New("verified principal vanished"))
		return
	}
	if err := h.startSession(w, p, "link"); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func linkResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return metrics.ResultInvalid
	case errors.Is(err, auth.ErrExpired):
		return metrics.ResultExpired
	case errors.Is(err, auth.ErrAlreadyUsed):
		return metrics.ResultUsed
	case errors.Is(err, auth.ErrForbidden):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

// AdminLogin checks the configured credential pair. The admin principal is
// only created or promoted after a successful check.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	if !h.admin.Verify(req.Email, req.Password) {
		h.metrics.AdminLogin(metrics.ResultRejected)
		h.logger.Warn("admin login rejected", "remote", r.RemoteAddr)
		WriteError(w, h.logger, auth.ErrInvalidCredentials)
		return
	}

	p, err := h.principals.EnsureAdmin(r.Context(), h.admin.Email())
	if err != nil {
		h.metrics.AdminLogin(metrics.ResultError)
		WriteError(w, h.logger, err)
		return
	}
	h.metrics.AdminLogin(metrics.ResultOK)

	if err := h.startSession(w, p, "admin"); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Session returns the signed-in principal. It runs behind RequireAuth.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		WriteError(w, h.logger, auth.ErrUnauthorized)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Logout clears the session cookie. Tokens are stateless, so a copied token
// stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.cookies.Read(r); ok {
		p, err := h.sessions.Verify(r.Context(), token)
		if err != nil {
			h.logger.Error("logout session lookup", "error", err)
		}
		if p != nil {
			h.events.Publish(websocket.NewEvent(websocket.ActionSessionEnded, p.PublicID, nil))
		}
	}
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// OrderSignIn redeems an order email link. It always redirects to the
// order view; a matching token also signs the owner in. It runs behind
// Authenticate: a visitor already signed in as the owner, or as the admin,
// keeps the current session.
func (h *AuthHandler) OrderSignIn(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order")
	supplied := r.URL.Query().Get("token")

	target := "/"
	if orderID != "" {
		target = "/orders/" + url.PathEscape(orderID)
	}

	id, ok := h.bridge.Redeem(r.Context(), orderID, supplied)
	if !ok {
		h.metrics.BridgeRedeemed(metrics.ResultMiss)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	if auth.PrincipalID(r.Context()) == id || auth.IsAdmin(r.Context()) {
		h.metrics.BridgeRedeemed(metrics.ResultOK)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	p, err := h.principals.GetByID(r.Context(), id)
	if err != nil || p == nil {
		h.metrics.BridgeRedeemed(metrics.ResultError)
		h.logger.Error("order sign-in principal", "order", orderID, "error", err)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	h.metrics.BridgeRedeemed(metrics.ResultOK)

	if err := h.startSession(w, p, "bridge"); err != nil {
		h.logger.Error("order sign-in session", "order", orderID, "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, p *model.Principal, kind string) error {
	token, expiresAt, err := h.sessions.Issue(p.ID)
	if err != nil {
		return err
	}
	h.cookies.Set(w, token, expiresAt)
	h.metrics.SessionIssued(kind)
	h.events.Publish(websocket.NewEvent(websocket.ActionSessionStarted, p.PublicID, map[string]any{"via": kind}))
	return nil
}
