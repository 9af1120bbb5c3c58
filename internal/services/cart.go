package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// AddCartItemInput is the request to hold seats of one time slot
type AddCartItemInput struct {
	TimeSlotID       string                  `json:"timeSlotId" validate:"required,uuid"`
	Target           models.Target           `json:"target"`
	BookingDate      string                  `json:"bookingDate,omitempty"`
	TicketQuantities models.TicketQuantities `json:"ticketQuantities" validate:"required"`
}

// MergeResult reports the outcome of converting a guest cart into holds
type MergeResult struct {
	Added  []*models.CartItem `json:"added"`
	Failed []models.ItemError `json:"failed"`
}

// CartService places and releases server-side seat holds
type CartService struct {
	carts    CartStore
	slots    TimeSlotStore
	prices   PricingStore
	settings SettingsProvider
	metrics  *Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, slots TimeSlotStore, prices PricingStore, settings SettingsProvider, metrics *Metrics, logger *logrus.Logger) *CartService {
	return &CartService{
		carts:    carts,
		slots:    slots,
		prices:   prices,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// AddItem validates the request, prices it server-side and places a hold.
// The slot's date is authoritative; a client supplied booking date is ignored.
func (s *CartService) AddItem(ctx context.Context, principal *models.Principal, input AddCartItemInput) (*models.CartItem, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}
	if err := validateStruct("Invalid cart item", input); err != nil {
		return nil, err
	}
	if err := input.Target.Validate(); err != nil {
		return nil, models.NewValidationError("Invalid target", map[string]string{"target": err.Error()})
	}
	if err := input.TicketQuantities.Validate(); err != nil {
		return nil, models.NewValidationError("Invalid ticket quantities", map[string]string{"ticketQuantities": err.Error()})
	}

	settings := s.settings.Current(ctx)
	if total := input.TicketQuantities.Total(); settings.MaxTicketsPerItem > 0 && total > settings.MaxTicketsPerItem {
		return nil, models.NewValidationError(
			fmt.Sprintf("At most %d tickets per item", settings.MaxTicketsPerItem),
			map[string]string{"ticketQuantities": "max"},
		)
	}

	slot, err := s.slots.GetByID(ctx, input.TimeSlotID)
	if err != nil {
		if errors.Is(err, models.ErrTimeSlotNotFound) {
			return nil, models.NewNotFoundError("Time slot not found", err)
		}
		return nil, models.NewInternalError("Failed to load time slot", err)
	}
	if !slot.BelongsTo(input.Target) {
		return nil, models.NewValidationError("Time slot does not belong to the selected exhibition or show",
			map[string]string{"timeSlotId": "target"})
	}

	subtotal, err := s.price(ctx, input.Target, input.TicketQuantities)
	if err != nil {
		return nil, err
	}

	item, err := s.carts.CreateHold(ctx, &models.CartItemCreateRequest{
		UserID:           principal.UserID,
		TimeSlotID:       slot.ID,
		Target:           slot.Target,
		BookingDate:      slot.SlotDate,
		TicketQuantities: input.TicketQuantities,
		SubtotalPaise:    subtotal,
		ExpiresAt:        s.now().Add(models.CartHoldDuration),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientSeats):
			s.metrics.CapacityRejected()
			return nil, models.NewCapacityError("Not enough seats available for this time slot", err)
		case errors.Is(err, models.ErrTimeSlotNotFound):
			return nil, models.NewNotFoundError("Time slot not found", err)
		}
		return nil, models.NewInternalError("Failed to add item to cart", err)
	}

	s.metrics.CartHold()
	s.logger.WithFields(logrus.Fields{
		"user_id":      principal.UserID,
		"cart_item_id": item.ID,
		"time_slot_id": slot.ID,
		"seats":        input.TicketQuantities.Total(),
	}).Info("Seats held in cart")

	return item, nil
}

// price multiplies quantities by the server-side price table
func (s *CartService) price(ctx context.Context, target models.Target, quantities models.TicketQuantities) (int64, error) {
	prices, err := s.prices.GetPrices(ctx, target)
	if err != nil {
		return 0, models.NewInternalError("Failed to load ticket prices", err)
	}

	var subtotal int64
	for ticketType, n := range quantities {
		if n == 0 {
			continue
		}
		price, ok := prices[ticketType]
		if !ok {
			return 0, models.NewValidationError(
				fmt.Sprintf("Unknown ticket type %q", ticketType),
				map[string]string{"ticketQuantities": "ticket_type"},
			)
		}
		if price < 0 || (price > 0 && int64(n) > (math.MaxInt64-subtotal)/price) {
			return 0, models.NewValidationError(
				fmt.Sprintf("Ticket price for %q is out of range", ticketType),
				map[string]string{"ticketQuantities": "amount"},
			)
		}
		subtotal += price * int64(n)
	}
	return subtotal, nil
}

// RemoveItem deletes a cart row and releases its seats. Removing an item that
// is already gone succeeds; removed reports whether anything was deleted.
func (s *CartService) RemoveItem(ctx context.Context, principal *models.Principal, itemID string) (bool, error) {
	if principal == nil {
		return false, models.NewAuthError("Authentication required")
	}

	removed, err := s.carts.Remove(ctx, principal.UserID, itemID)
	if err != nil {
		return false, models.NewInternalError("Failed to remove cart item", err)
	}

	if removed {
		s.logger.WithFields(logrus.Fields{
			"user_id":      principal.UserID,
			"cart_item_id": itemID,
		}).Info("Cart item removed")
	}
	return removed, nil
}

// ClearCart releases every hold the user has
func (s *CartService) ClearCart(ctx context.Context, principal *models.Principal) ([]string, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}

	ids, err := s.carts.Clear(ctx, principal.UserID)
	if err != nil {
		return nil, models.NewInternalError("Failed to clear cart", err)
	}
	return ids, nil
}

// CheckExpiredItems removes the user's lapsed holds and returns their ids
func (s *CartService) CheckExpiredItems(ctx context.Context, principal *models.Principal) ([]string, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}

	ids, err := s.carts.RemoveExpired(ctx, principal.UserID, s.now())
	if err != nil {
		return nil, models.NewInternalError("Failed to remove expired cart items", err)
	}

	if len(ids) > 0 {
		s.logger.WithFields(logrus.Fields{
			"user_id": principal.UserID,
			"count":   len(ids),
		}).Info("Expired cart holds released")
	}
	return ids, nil
}

// ListItems sweeps expired holds and returns what is left
func (s *CartService) ListItems(ctx context.Context, principal *models.Principal) ([]*models.CartItem, error) {
	if _, err := s.CheckExpiredItems(ctx, principal); err != nil {
		return nil, err
	}

	items, err := s.carts.GetByUser(ctx, principal.UserID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load cart", err)
	}
	if items == nil {
		items = []*models.CartItem{}
	}
	return items, nil
}

// SweepAllExpired releases lapsed holds for every user
func (s *CartService) SweepAllExpired(ctx context.Context) (int, error) {
	ids, err := s.carts.RemoveAllExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cart items: %w", err)
	}

	s.logger.WithField("count", len(ids)).Info("Expired cart holds swept")
	return len(ids), nil
}

// MergeGuestCart turns cookie-staged guest items into real holds.
// Each item is added independently; failures are reported per item.
func (s *CartService) MergeGuestCart(ctx context.Context, principal *models.Principal, items []models.GuestCartItem) (*MergeResult, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}

	result := &MergeResult{
		Added:  []*models.CartItem{},
		Failed: []models.ItemError{},
	}

	for _, guest := range items {
		item, err := s.AddItem(ctx, principal, AddCartItemInput{
			TimeSlotID:       guest.TimeSlotID,
			Target:           guest.Target,
			BookingDate:      guest.BookingDate,
			TicketQuantities: guest.TicketQuantities,
		})
		if err != nil {
			code := models.CodeInternal
			message := err.Error()
			if appErr, ok := models.AsAppError(err); ok {
				code = appErr.Code
				message = appErr.Message
			}
			result.Failed = append(result.Failed, models.ItemError{
				TimeSlotID: guest.TimeSlotID,
				Code:       code,
				Message:    message,
			})
			continue
		}
		result.Added = append(result.Added, item)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": principal.UserID,
		"added":   len(result.Added),
		"failed":  len(result.Failed),
	}).Info("Guest cart merged")

	return result, nil
}
