package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

// CheckoutService creates gateway orders from held cart items
type CheckoutService interface {
	Checkout(ctx context.Context, principal *models.Principal, input services.CheckoutInput) (*services.CheckoutResult, error)
}

// checkoutResponse puts the checkout result at the top level of the body
type checkoutResponse struct {
	Success bool `json:"success"`
	*services.CheckoutResult
}

// CheckoutHandler serves POST /api/checkout
type CheckoutHandler struct {
	checkout CheckoutService
	logger   *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkout CheckoutService, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

// Checkout returns a gateway order to pay, or the bookings of a free checkout.
// Item errors of a free checkout are reported alongside the bookings.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var input services.CheckoutInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.checkout.Checkout(r.Context(), middleware.PrincipalFrom(r.Context()), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.IsFree {
		status = http.StatusCreated
	}
	writeJSON(w, status, checkoutResponse{Success: true, CheckoutResult: result})
}
