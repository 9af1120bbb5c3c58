package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

// PaymentVerifier confirms a client-reported payment
type PaymentVerifier interface {
	Verify(ctx context.Context, principal *models.Principal, input services.VerifyPaymentInput) (*services.VerifyPaymentResult, error)
}

// PaymentHandler serves POST /api/payments/verify
type PaymentHandler struct {
	payments PaymentVerifier
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentVerifier, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Verify checks the checkout widget's signature and books the order
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var input services.VerifyPaymentInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}
	input.Meta = services.RequestMetaFrom(r)

	result, err := h.payments.Verify(r.Context(), middleware.PrincipalFrom(r.Context()), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// the result already carries success and message
	writeJSON(w, http.StatusOK, result)
}
