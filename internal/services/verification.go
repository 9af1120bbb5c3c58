package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// VerifyPaymentInput is what the client's checkout widget hands back after payment
type VerifyPaymentInput struct {
	GatewayOrderID   string      `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string      `json:"gatewayPaymentId" validate:"required"`
	GatewaySignature string      `json:"gatewaySignature" validate:"required"`
	Meta             RequestMeta `json:"-"`
}

// VerifyPaymentResult is returned to the client after a verified payment
type VerifyPaymentResult struct {
	Success  bool               `json:"success"`
	Bookings []*models.Booking  `json:"bookings"`
	Tickets  []*models.Ticket   `json:"tickets"`
	Errors   []models.ItemError `json:"errors,omitempty"`
	Message  string             `json:"message"`
}

// PaymentService verifies client-side payment confirmations
type PaymentService struct {
	orders     PaymentOrderStore
	gateway    PaymentGateway
	completion *PaymentCompletion
	audit      *AuditService
	metrics    *Metrics
	logger     *logrus.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(orders PaymentOrderStore, gateway PaymentGateway, completion *PaymentCompletion, audit *AuditService, metrics *Metrics, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		orders:     orders,
		gateway:    gateway,
		completion: completion,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// Verify checks the payment signature and, for the first caller to do so,
// converts the order's cart snapshot into bookings.
// A bad signature changes nothing.
func (s *PaymentService) Verify(ctx context.Context, principal *models.Principal, input VerifyPaymentInput) (*VerifyPaymentResult, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}
	if err := validateStruct("Missing payment verification fields", input); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id":          principal.UserID,
		"gateway_order_id": input.GatewayOrderID,
		"payment_id":       input.GatewayPaymentID,
	})

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderID, input.GatewayPaymentID, input.GatewaySignature) {
		s.metrics.SignatureFailure()
		log.WithFields(logrus.Fields{
			"security_event": true,
			"ip_address":     input.Meta.IPAddress,
		}).Warn("Payment signature mismatch")
		actor := principal.UserID
		s.audit.LogAction(ctx, &actor, models.AuditActionPaymentSignatureMismatch, models.AuditTargetPaymentOrder,
			input.GatewayOrderID, map[string]string{"paymentId": input.GatewayPaymentID}, input.Meta)
		return nil, models.NewSignatureError("Invalid payment signature")
	}

	order, err := s.orders.GetByGatewayOrderIDForUser(ctx, input.GatewayOrderID, principal.UserID)
	if err != nil {
		if errors.Is(err, models.ErrPaymentOrderNotFound) {
			return nil, models.NewNotFoundError("Payment order not found", err)
		}
		return nil, models.NewInternalError("Failed to load payment order", err)
	}
	if order.IsPaid() {
		return nil, models.NewConflictError("Payment already processed", models.ErrOrderAlreadyPaid)
	}

	signature := input.GatewaySignature
	result, err := s.completion.Apply(ctx, order, input.GatewayPaymentID, &signature, SourceVerification)
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentVerified()

	message := fmt.Sprintf("Payment verified, %d booking(s) confirmed", len(result.Bookings))
	if len(result.Errors) > 0 {
		message = fmt.Sprintf("Payment verified, %d booking(s) confirmed and %d item(s) need attention from support",
			len(result.Bookings), len(result.Errors))
	}

	return &VerifyPaymentResult{
		Success:  true,
		Bookings: result.Bookings,
		Tickets:  result.Tickets,
		Errors:   result.Errors,
		Message:  message,
	}, nil
}
