package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// BookingService serves the booking read endpoints
type BookingService struct {
	bookings BookingStore
	logger   *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(bookings BookingStore, logger *logrus.Logger) *BookingService {
	return &BookingService{bookings: bookings, logger: logger}
}

// ListForUser returns the caller's bookings with their tickets
func (s *BookingService) ListForUser(ctx context.Context, principal *models.Principal, page, limit int) ([]*models.BookingWithTicket, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	bookings, err := s.bookings.ListByUser(ctx, principal.UserID, limit, (page-1)*limit)
	if err != nil {
		return nil, models.NewInternalError("Failed to load bookings", err)
	}
	if bookings == nil {
		bookings = []*models.BookingWithTicket{}
	}
	return bookings, nil
}

// GetByReference returns one booking; only its owner or an admin may see it
func (s *BookingService) GetByReference(ctx context.Context, principal *models.Principal, reference string) (*models.BookingWithTicket, error) {
	if principal == nil {
		return nil, models.NewAuthError("Authentication required")
	}

	result, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			return nil, models.NewNotFoundError("Booking not found", err)
		}
		return nil, models.NewInternalError("Failed to load booking", err)
	}

	owner := result.Booking.UserID
	if !principal.IsAdmin() && (owner == nil || *owner != principal.UserID) {
		// indistinguishable from a missing booking
		return nil, models.NewNotFoundError("Booking not found", models.ErrBookingNotFound)
	}

	return result, nil
}
