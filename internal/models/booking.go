package models

import "time"

// BookingStatus represents the lifecycle of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// BookingPaymentStatus mirrors the payment state on the booking row
type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "pending"
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentFailed   BookingPaymentStatus = "failed"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

// Booking is a confirmed visit created from one cart line item
type Booking struct {
	ID               string               `json:"id"`
	BookingReference string               `json:"bookingReference"`
	UserID           *string              `json:"userId,omitempty"`
	GuestName        string               `json:"guestName"`
	GuestEmail       string               `json:"guestEmail"`
	GuestPhone       *string              `json:"guestPhone,omitempty"`
	TimeSlotID       string               `json:"timeSlotId"`
	Target           Target               `json:"target"`
	BookingDate      string               `json:"bookingDate"`
	TicketQuantities TicketQuantities     `json:"ticketQuantities"`
	TotalAmountPaise int64                `json:"totalAmountPaise"`
	Status           BookingStatus        `json:"status"`
	PaymentStatus    BookingPaymentStatus `json:"paymentStatus"`
	PaymentOrderID   *string              `json:"paymentOrderId,omitempty"`
	PaymentID        *string              `json:"paymentId,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// TotalAmountInRupees returns the booking total in rupees
func (b *Booking) TotalAmountInRupees() float64 {
	return PaiseToRupees(b.TotalAmountPaise)
}

// IsConfirmed returns true if the booking is confirmed
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingConfirmed
}

// BookingCreateRequest carries everything needed to insert a booking row
type BookingCreateRequest struct {
	BookingReference string
	UserID           *string
	Contact          ContactDetails
	TimeSlotID       string
	Target           Target
	BookingDate      string
	TicketQuantities TicketQuantities
	TotalAmountPaise int64
	Status           BookingStatus
	PaymentStatus    BookingPaymentStatus
	PaymentOrderID   *string
	PaymentID        *string
}

// BookingWithTicket pairs a booking with its (optional) ticket for read endpoints
type BookingWithTicket struct {
	Booking *Booking `json:"booking"`
	Ticket  *Ticket  `json:"ticket,omitempty"`
}
