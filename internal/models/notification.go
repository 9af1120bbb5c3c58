package models

// BookingNotification is the confirmation email job for one booking
type BookingNotification struct {
	GuestEmail       string  `json:"guestEmail"`
	GuestName        string  `json:"guestName"`
	BookingReference string  `json:"bookingReference"`
	EventTitle       string  `json:"eventTitle"`
	VisitDate        string  `json:"visitDate"`
	TimeSlot         string  `json:"timeSlot"`
	TotalAmount      float64 `json:"totalAmount"`
	TicketCount      int     `json:"ticketCount"`
	PaymentID        string  `json:"paymentId,omitempty"`
}
