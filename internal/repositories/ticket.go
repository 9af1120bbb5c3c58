package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// TicketRepository handles ticket data operations
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketNumberConstraint = "tickets_ticket_number_key"

const ticketJoinColumns = `t.id, t.booking_id, t.ticket_number, t.qr_code, t.status, t.created_at`

// CreateForBooking inserts the booking's ticket unless one already exists.
// created is false when an existing ticket was returned instead.
func (r *TicketRepository) CreateForBooking(ctx context.Context, ticket *models.Ticket) (*models.Ticket, bool, error) {
	out := *ticket

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tickets (booking_id, ticket_number, qr_code, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING id, created_at`,
		ticket.BookingID, ticket.TicketNumber, ticket.QRCode, ticket.Status,
	).Scan(&out.ID, &out.CreatedAt)

	if err == sql.ErrNoRows {
		existing, err := r.GetByBookingID(ctx, ticket.BookingID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		if isUniqueViolation(err, ticketNumberConstraint) {
			return nil, false, models.ErrDuplicateReference
		}
		return nil, false, fmt.Errorf("failed to create ticket: %w", err)
	}

	return &out, true, nil
}

// GetByBookingID returns the ticket for a booking
func (r *TicketRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.Ticket, error) {
	query := `SELECT ` + ticketJoinColumns + ` FROM tickets t WHERE t.booking_id = $1`

	ticket := &models.Ticket{}
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(
		&ticket.ID,
		&ticket.BookingID,
		&ticket.TicketNumber,
		&ticket.QRCode,
		&ticket.Status,
		&ticket.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	return ticket, nil
}

// nullableTicket scans the LEFT JOINed ticket columns of a booking query
type nullableTicket struct {
	id, bookingID, number, qrCode, status sql.NullString
	createdAt                             sql.NullTime
}

func (n *nullableTicket) targets() []interface{} {
	return []interface{}{&n.id, &n.bookingID, &n.number, &n.qrCode, &n.status, &n.createdAt}
}

func (n *nullableTicket) ticket() *models.Ticket {
	if !n.id.Valid {
		return nil
	}
	return &models.Ticket{
		ID:           n.id.String,
		BookingID:    n.bookingID.String,
		TicketNumber: n.number.String,
		QRCode:       n.qrCode.String,
		Status:       models.TicketStatus(n.status.String),
		CreatedAt:    n.createdAt.Time,
	}
}
