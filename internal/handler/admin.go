package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/storefront/internal/auth"
	"github.com/dukerupert/storefront/internal/model"
	"github.com/dukerupert/storefront/internal/store"
	"github.com/dukerupert/storefront/internal/websocket"
)

type orderMailer interface {
	SendOrderLink(ctx context.Context, toEmail, orderPublicID, link string) error
}

// AdminHandler serves principal management for the operator. Every route
// runs behind RequireAdmin.
type AdminHandler struct {
	principals *store.PrincipalStore
	orders     *store.OrderStore
	mailer     orderMailer
	baseURL    string
	events     eventPublisher
	logger     *slog.Logger
}

func NewAdminHandler(ps *store.PrincipalStore, orders *store.OrderStore, mailer orderMailer, baseURL string, events eventPublisher, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		principals: ps,
		orders:     orders,
		mailer:     mailer,
		baseURL:    baseURL,
		events:     events,
		logger:     logger,
	}
}

func (h *AdminHandler) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := h.principals.List(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if principals == nil {
		principals = []model.Principal{}
	}
	WriteJSON(w, http.StatusOK, principals)
}

// SetRole assigns a role out of band. It is the only path that changes a
// principal's role besides admin bootstrap.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		WriteError(w, h.logger, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}

	p, err := h.principals.SetRole(r.Context(), r.PathValue("publicID"), role)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if p == nil {
		WriteError(w, h.logger, fmt.Errorf("%w: principal", errNotFound))
		return
	}

	actor := ""
	if a, ok := auth.FromContext(r.Context()); ok {
		actor = a.PublicID
	}
	h.logger.Info("role changed", "principal", p.PublicID, "role", role, "by", actor)
	h.events.Publish(websocket.NewEvent(websocket.ActionRoleChanged, p.PublicID, map[string]any{"role": role.String()}))
	WriteJSON(w, http.StatusOK, p)
}

// SendOrderLink mails the owner of an order a link that signs them in and
// opens it.
func (h *AdminHandler) SendOrderLink(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByPublicID(r.Context(), r.PathValue("publicID"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if order == nil {
		WriteError(w, h.logger, fmt.Errorf("%w: order", errNotFound))
		return
	}
	owner, err := h.principals.GetByID(r.Context(), order.PrincipalID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if owner == nil {
		WriteError(w, h.logger, fmt.Errorf("%w: order owner", errNotFound))
		return
	}

	link := auth.BridgeLink(h.baseURL, order.PublicID, owner.ID)
	if err := h.mailer.SendOrderLink(r.Context(), owner.Email, order.PublicID, link); err != nil {
		h.logger.Error("send order link", "order", order.PublicID, "error", err)
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}
