package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

// CartService is the part of services.CartService the cart routes use
type CartService interface {
	AddItem(ctx context.Context, principal *models.Principal, input services.AddCartItemInput) (*models.CartItem, error)
	RemoveItem(ctx context.Context, principal *models.Principal, itemID string) (bool, error)
	ClearCart(ctx context.Context, principal *models.Principal) ([]string, error)
	CheckExpiredItems(ctx context.Context, principal *models.Principal) ([]string, error)
	ListItems(ctx context.Context, principal *models.Principal) ([]*models.CartItem, error)
	MergeGuestCart(ctx context.Context, principal *models.Principal, items []models.GuestCartItem) (*services.MergeResult, error)
}

// CartHandler serves the held cart and the pre-login guest cart
type CartHandler struct {
	cart   CartService
	guests *middleware.GuestCartStore
	logger *logrus.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cart CartService, guests *middleware.GuestCartStore, logger *logrus.Logger) *CartHandler {
	return &CartHandler{cart: cart, guests: guests, logger: logger}
}

type cartView struct {
	Items      []*models.CartItem `json:"items"`
	Count      int                `json:"count"`
	TotalPaise int64              `json:"totalPaise"`
}

// List returns the caller's live holds after releasing expired ones
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.cart.ListItems(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view := cartView{Items: items, Count: len(items)}
	for _, item := range items {
		view.TotalPaise += item.SubtotalPaise
	}
	writeData(w, http.StatusOK, view)
}

// AddItem holds seats for one time slot
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var input services.AddCartItemInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	item, err := h.cart.AddItem(r.Context(), middleware.PrincipalFrom(r.Context()), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, item)
}

// RemoveItem releases one hold. Removing an unknown item still succeeds.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.cart.RemoveItem(r.Context(), middleware.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"id": id, "removed": removed})
}

// Clear releases every hold of the caller
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cart.ClearCart(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"removedItemIds": ids})
}

// SweepExpired releases the caller's lapsed holds
func (h *CartHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cart.CheckExpiredItems(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"expiredItemIds": ids})
}

// GuestList returns the items staged in the guest cookie
func (h *CartHandler) GuestList(w http.ResponseWriter, r *http.Request) {
	items := h.guests.Items(r)
	writeData(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

// GuestAdd stages an item in the guest cookie. No seats are held.
func (h *CartHandler) GuestAdd(w http.ResponseWriter, r *http.Request) {
	var item models.GuestCartItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if item.TimeSlotID == "" {
		writeError(w, h.logger, models.NewValidationError("timeSlotId is required", nil))
		return
	}
	if err := item.Target.Validate(); err != nil {
		writeError(w, h.logger, models.NewValidationError(err.Error(), nil))
		return
	}
	if err := item.TicketQuantities.Validate(); err != nil {
		writeError(w, h.logger, models.NewValidationError(err.Error(), nil))
		return
	}
	item.AddedAt = time.Now().UTC()

	items, err := h.guests.Add(w, r, item)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]interface{}{"items": items, "count": len(items)})
}

// GuestClear drops the guest cookie
func (h *CartHandler) GuestClear(w http.ResponseWriter, r *http.Request) {
	if err := h.guests.Clear(w, r); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"items": []models.GuestCartItem{}, "count": 0})
}

// MergeGuest converts the guest cookie into held items for the signed-in
// caller. The cookie is cleared once the merge ran, whatever failed.
func (h *CartHandler) MergeGuest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFrom(r.Context())
	items := h.guests.Items(r)

	result, err := h.cart.MergeGuestCart(r.Context(), principal, items)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.guests.Clear(w, r); err != nil {
		h.logger.WithError(err).WithField("user_id", principal.UserID).Warn("Failed to clear guest cart after merge")
	}
	writeData(w, http.StatusOK, result)
}
