package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"museum-ticketing-platform/internal/models"
)

// BookingRepository handles booking data operations
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `b.id, b.booking_reference, b.user_id, b.guest_name, b.guest_email, b.guest_phone,
	b.time_slot_id, b.exhibition_id, b.show_id, b.booking_date::text, b.ticket_quantities,
	b.total_amount_paise, b.status, b.payment_status, b.payment_order_id, b.payment_id,
	b.created_at, b.updated_at`

const bookingReferenceConstraint = "bookings_booking_reference_key"

// Create inserts a booking row. A clash on booking_reference returns ErrDuplicateReference
// so the caller can retry with a fresh reference.
func (r *BookingRepository) Create(ctx context.Context, req *models.BookingCreateRequest) (*models.Booking, error) {
	exhibitionID, showID := req.Target.Columns()
	var phone *string
	if req.Contact.Phone != "" {
		phone = &req.Contact.Phone
	}

	booking := &models.Booking{
		BookingReference: req.BookingReference,
		UserID:           req.UserID,
		GuestName:        req.Contact.Name,
		GuestEmail:       req.Contact.Email,
		GuestPhone:       phone,
		TimeSlotID:       req.TimeSlotID,
		Target:           req.Target,
		BookingDate:      req.BookingDate,
		TicketQuantities: req.TicketQuantities,
		TotalAmountPaise: req.TotalAmountPaise,
		Status:           req.Status,
		PaymentStatus:    req.PaymentStatus,
		PaymentOrderID:   req.PaymentOrderID,
		PaymentID:        req.PaymentID,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bookings (booking_reference, user_id, guest_name, guest_email, guest_phone,
		                      time_slot_id, exhibition_id, show_id, booking_date, ticket_quantities,
		                      total_amount_paise, status, payment_status, payment_order_id, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		req.BookingReference, req.UserID, req.Contact.Name, req.Contact.Email, phone,
		req.TimeSlotID, exhibitionID, showID, req.BookingDate, req.TicketQuantities,
		req.TotalAmountPaise, req.Status, req.PaymentStatus, req.PaymentOrderID, req.PaymentID,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, bookingReferenceConstraint) {
			return nil, models.ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	return booking, nil
}

// GetByReference loads a booking and its ticket by booking reference
func (r *BookingRepository) GetByReference(ctx context.Context, reference string) (*models.BookingWithTicket, error) {
	query := `SELECT ` + bookingColumns + `, ` + ticketJoinColumns + `
		FROM bookings b
		LEFT JOIN tickets t ON t.booking_id = b.id
		WHERE b.booking_reference = $1`

	result, err := scanBookingWithTicket(r.db.QueryRowContext(ctx, query, reference))
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return result, nil
}

// ListByUser returns the user's bookings with tickets, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.BookingWithTicket, error) {
	query := `SELECT ` + bookingColumns + `, ` + ticketJoinColumns + `
		FROM bookings b
		LEFT JOIN tickets t ON t.booking_id = b.id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var results []*models.BookingWithTicket
	for rows.Next() {
		result, err := scanBookingWithTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	return results, nil
}

// ListByPaymentOrder returns every booking created for a payment order
func (r *BookingRepository) ListByPaymentOrder(ctx context.Context, paymentOrderID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.payment_order_id = $1
		ORDER BY b.created_at`

	rows, err := r.db.QueryContext(ctx, query, paymentOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	return bookings, nil
}

// UpdatePaymentStatusForOrder flips payment_status on an order's bookings that
// are currently in one of the from states. Booking status is left alone.
func (r *BookingRepository) UpdatePaymentStatusForOrder(ctx context.Context, paymentOrderID string, from []models.BookingPaymentStatus, to models.BookingPaymentStatus) (int64, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = $2, updated_at = NOW()
		WHERE payment_order_id = $1 AND payment_status = ANY($3)`,
		paymentOrderID, to, pq.Array(states))
	if err != nil {
		return 0, fmt.Errorf("failed to update booking payment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

func bookingScanTargets(b *models.Booking, userID, phone, exhibitionID, showID, orderID, paymentID *sql.NullString) []interface{} {
	return []interface{}{
		&b.ID,
		&b.BookingReference,
		userID,
		&b.GuestName,
		&b.GuestEmail,
		phone,
		&b.TimeSlotID,
		exhibitionID,
		showID,
		&b.BookingDate,
		&b.TicketQuantities,
		&b.TotalAmountPaise,
		&b.Status,
		&b.PaymentStatus,
		orderID,
		paymentID,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var userID, phone, exhibitionID, showID, orderID, paymentID sql.NullString

	if err := row.Scan(bookingScanTargets(b, &userID, &phone, &exhibitionID, &showID, &orderID, &paymentID)...); err != nil {
		return nil, err
	}

	return finishBooking(b, userID, phone, exhibitionID, showID, orderID, paymentID)
}

func scanBookingWithTicket(row rowScanner) (*models.BookingWithTicket, error) {
	b := &models.Booking{}
	var userID, phone, exhibitionID, showID, orderID, paymentID sql.NullString
	var t nullableTicket

	dest := append(bookingScanTargets(b, &userID, &phone, &exhibitionID, &showID, &orderID, &paymentID), t.targets()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	booking, err := finishBooking(b, userID, phone, exhibitionID, showID, orderID, paymentID)
	if err != nil {
		return nil, err
	}

	return &models.BookingWithTicket{Booking: booking, Ticket: t.ticket()}, nil
}

func finishBooking(b *models.Booking, userID, phone, exhibitionID, showID, orderID, paymentID sql.NullString) (*models.Booking, error) {
	b.UserID = nullableString(userID)
	b.GuestPhone = nullableString(phone)
	b.PaymentOrderID = nullableString(orderID)
	b.PaymentID = nullableString(paymentID)

	target, err := models.TargetFromColumns(nullableString(exhibitionID), nullableString(showID))
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	b.Target = target

	return b, nil
}
