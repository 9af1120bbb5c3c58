package models

import (
	"errors"
	"time"
)

// TicketStatus represents the status of a ticket
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is the admission pass for a booking. There is one per booking.
type Ticket struct {
	ID           string       `json:"id"`
	BookingID    string       `json:"bookingId"`
	TicketNumber string       `json:"ticketNumber"`
	QRCode       string       `json:"qrCode"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// NewTicketForBooking prepares a ticket whose QR payload is the booking reference
func NewTicketForBooking(b *Booking) (*Ticket, error) {
	number, err := GenerateTicketNumber()
	if err != nil {
		return nil, err
	}
	return &Ticket{
		BookingID:    b.ID,
		TicketNumber: number,
		QRCode:       b.BookingReference,
		Status:       TicketActive,
	}, nil
}

// Validate validates the ticket data
func (t *Ticket) Validate() error {
	if t.BookingID == "" {
		return errors.New("booking ID is required")
	}
	if !IsValidReference(t.TicketNumber) {
		return errors.New("invalid ticket number format")
	}
	if t.QRCode == "" {
		return errors.New("QR code is required")
	}
	switch t.Status {
	case TicketActive, TicketCancelled:
	default:
		return errors.New("invalid ticket status")
	}
	return nil
}

// IsActive returns true if the ticket can be used for admission
func (t *Ticket) IsActive() bool {
	return t.Status == TicketActive
}
