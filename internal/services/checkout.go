package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/utils"
)

// CheckoutInput is the checkout request body
type CheckoutInput struct {
	CartItemIDs   []string              `json:"cartItemIds" validate:"required,min=1,dive,required"`
	UserDetails   models.ContactDetails `json:"userDetails"`
	TermsAccepted bool                  `json:"termsAccepted"`
}

// CheckoutResult is either a gateway order for the client to pay, or the
// bookings of a free checkout
type CheckoutResult struct {
	IsFree        bool               `json:"isFree"`
	OrderID       string             `json:"orderId,omitempty"`
	AmountInPaise int64              `json:"amountInPaise"`
	Currency      string             `json:"currency,omitempty"`
	GatewayKeyID  string             `json:"gatewayKeyId,omitempty"`
	Bookings      []*models.Booking  `json:"bookings,omitempty"`
	Tickets       []*models.Ticket   `json:"tickets,omitempty"`
	Errors        []models.ItemError `json:"errors,omitempty"`
}

// CheckoutService turns held cart items into a gateway order
type CheckoutService struct {
	carts      CartStore
	orders     PaymentOrderStore
	gateway    PaymentGateway
	completion *PaymentCompletion
	metrics    *Metrics
	logger     *logrus.Logger
	now        func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(carts CartStore, orders PaymentOrderStore, gateway PaymentGateway, completion *PaymentCompletion, metrics *Metrics, logger *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		carts:      carts,
		orders:     orders,
		gateway:    gateway,
		completion: completion,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Checkout validates the selected cart items and either creates a gateway
// order or, for a zero total, books them straight away.
// No booking is created on the paid path.
func (s *CheckoutService) Checkout(ctx context.Context, principal *models.Principal, input CheckoutInput) (*CheckoutResult, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}

	input.UserDetails = input.UserDetails.Normalize()
	if err := validateStruct("Invalid checkout request", input); err != nil {
		return nil, err
	}
	if err := input.UserDetails.ValidatePhone(); err != nil {
		return nil, models.NewValidationError("Invalid phone number", map[string]string{"userDetails.phone": "phone"})
	}
	if !input.TermsAccepted {
		return nil, models.NewValidationError("Terms and conditions must be accepted", map[string]string{"termsAccepted": "required"})
	}

	items, err := s.loadItems(ctx, principal.UserID, input.CartItemIDs)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, item := range items {
		total += item.SubtotalPaise
	}

	if total == 0 {
		return s.checkoutFree(ctx, principal, input.UserDetails, items)
	}

	return s.checkoutPaid(ctx, principal, input.UserDetails, items, total)
}

// loadItems returns the requested cart rows, rejecting unknown or expired ones
func (s *CheckoutService) loadItems(ctx context.Context, userID string, ids []string) ([]*models.CartItem, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	items, err := s.carts.GetByIDs(ctx, userID, unique)
	if err != nil {
		return nil, models.NewInternalError("Failed to load cart", err)
	}

	found := make(map[string]bool, len(items))
	for _, item := range items {
		found[item.ID] = true
	}
	var missing []string
	for _, id := range unique {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, models.NewValidationError("Some cart items are no longer in your cart", map[string]interface{}{"missing": missing})
	}

	now := s.now()
	var expired []string
	for _, item := range items {
		if item.IsExpired(now) {
			expired = append(expired, item.ID)
		}
	}
	if len(expired) > 0 {
		return nil, models.NewValidationError("Some cart items have expired", map[string]interface{}{"expired": expired})
	}

	return items, nil
}

func (s *CheckoutService) checkoutFree(ctx context.Context, principal *models.Principal, contact models.ContactDetails, items []*models.CartItem) (*CheckoutResult, error) {
	s.metrics.Checkout(true)

	result, err := s.completion.MaterializeFree(ctx, principal, contact, items)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		IsFree:   true,
		Currency: models.DefaultCurrency,
		Bookings: result.Bookings,
		Tickets:  result.Tickets,
		Errors:   result.Errors,
	}, nil
}

func (s *CheckoutService) checkoutPaid(ctx context.Context, principal *models.Principal, contact models.ContactDetails, items []*models.CartItem, total int64) (*CheckoutResult, error) {
	receipt, err := utils.GenerateSecureToken(12)
	if err != nil {
		return nil, models.NewInternalError("Failed to generate receipt", err)
	}
	receipt = "rcpt_" + receipt

	gatewayOrder, err := s.gateway.CreateOrder(ctx, total, models.DefaultCurrency, receipt)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":      principal.UserID,
			"amount_paise": total,
		}).Error("Gateway order creation failed")
		return nil, models.NewUpstreamError("Payment gateway is unavailable, please try again", err)
	}

	snapshot := make(models.CartSnapshot, 0, len(items))
	for _, item := range items {
		snapshot = append(snapshot, item.Snapshot())
	}

	order, err := s.orders.Create(ctx, &models.PaymentOrderCreateRequest{
		GatewayOrderID: gatewayOrder.ID,
		UserID:         principal.UserID,
		AmountPaise:    total,
		Currency:       models.DefaultCurrency,
		CartSnapshot:   snapshot,
		Contact:        contact,
	})
	if err != nil {
		return nil, models.NewInternalError("Failed to save payment order", fmt.Errorf("gateway order %s: %w", gatewayOrder.ID, err))
	}

	s.metrics.Checkout(false)
	s.logger.WithFields(logrus.Fields{
		"user_id":          principal.UserID,
		"order_id":         order.ID,
		"gateway_order_id": order.GatewayOrderID,
		"amount_paise":     total,
		"items":            len(items),
	}).Info("Payment order created")

	return &CheckoutResult{
		OrderID:       order.GatewayOrderID,
		AmountInPaise: order.AmountPaise,
		Currency:      order.Currency,
		GatewayKeyID:  s.gateway.KeyID(),
	}, nil
}
