package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
)

// BookingReader lists the caller's bookings
type BookingReader interface {
	ListForUser(ctx context.Context, principal *models.Principal, page, limit int) ([]*models.BookingWithTicket, error)
	GetByReference(ctx context.Context, principal *models.Principal, reference string) (*models.BookingWithTicket, error)
}

type BookingHandler struct {
	bookings BookingReader
	logger   *logrus.Logger
}

func NewBookingHandler(bookings BookingReader, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// List returns a page of the caller's bookings, newest first
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	bookings, err := h.bookings.ListForUser(r.Context(), middleware.PrincipalFrom(r.Context()), page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"page":     page,
		"limit":    limit,
	})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.GetByReference(r.Context(), middleware.PrincipalFrom(r.Context()), chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, booking)
}
