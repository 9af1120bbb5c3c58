package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"museum-ticketing-platform/internal/models"
)

// CartRepository owns cart_items and the seat counters they hold on time_slots
type CartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

const cartItemColumns = `id, user_id, time_slot_id, exhibition_id, show_id, booking_date::text,
	ticket_quantities, subtotal_paise, expires_at, created_at`

// CreateHold decrements the slot's available seats and inserts the cart row in one transaction
func (r *CartRepository) CreateHold(ctx context.Context, req *models.CartItemCreateRequest) (*models.CartItem, error) {
	seats := req.TicketQuantities.Total()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT available_seats
		FROM time_slots
		WHERE id = $1
		FOR UPDATE`, req.TimeSlotID).Scan(&available)
	if err == sql.ErrNoRows {
		return nil, models.ErrTimeSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check seat availability: %w", err)
	}

	if available < seats {
		return nil, fmt.Errorf("%w (requested: %d, available: %d)", models.ErrInsufficientSeats, seats, available)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE time_slots
		SET available_seats = available_seats - $2
		WHERE id = $1`, req.TimeSlotID, seats); err != nil {
		return nil, fmt.Errorf("failed to hold seats: %w", err)
	}

	exhibitionID, showID := req.Target.Columns()
	item := &models.CartItem{
		UserID:           req.UserID,
		TimeSlotID:       req.TimeSlotID,
		Target:           req.Target,
		BookingDate:      req.BookingDate,
		TicketQuantities: req.TicketQuantities,
		SubtotalPaise:    req.SubtotalPaise,
		ExpiresAt:        req.ExpiresAt,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, time_slot_id, exhibition_id, show_id, booking_date,
		                        ticket_quantities, subtotal_paise, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		req.UserID, req.TimeSlotID, exhibitionID, showID, req.BookingDate,
		req.TicketQuantities, req.SubtotalPaise, req.ExpiresAt,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart item: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart hold: %w", err)
	}

	return item, nil
}

// GetByUser returns every cart row the user holds, oldest first
func (r *CartRepository) GetByUser(ctx context.Context, userID string) ([]*models.CartItem, error) {
	query := `SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at`

	return r.queryItems(ctx, query, userID)
}

// GetByIDs returns the user's cart rows among ids. Rows owned by other users are not returned.
func (r *CartRepository) GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.CartItem, error) {
	query := `SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE user_id = $1 AND id = ANY($2)
		ORDER BY created_at`

	return r.queryItems(ctx, query, userID, pq.Array(ids))
}

// Remove deletes one cart row and releases its seats. Returns false if the row was already gone.
func (r *CartRepository) Remove(ctx context.Context, userID, itemID string) (bool, error) {
	removed, err := r.removeWhere(ctx, "user_id = $1 AND id = $2", userID, itemID)
	if err != nil {
		return false, err
	}
	return len(removed) > 0, nil
}

// Clear deletes all of the user's cart rows and releases their seats
func (r *CartRepository) Clear(ctx context.Context, userID string) ([]string, error) {
	return r.removeWhere(ctx, "user_id = $1", userID)
}

// RemoveExpired deletes the user's lapsed holds and releases their seats
func (r *CartRepository) RemoveExpired(ctx context.Context, userID string, now time.Time) ([]string, error) {
	return r.removeWhere(ctx, "user_id = $1 AND expires_at <= $2", userID, now)
}

// RemoveAllExpired sweeps lapsed holds for every user
func (r *CartRepository) RemoveAllExpired(ctx context.Context, now time.Time) ([]string, error) {
	return r.removeWhere(ctx, "expires_at <= $1", now)
}

// Consume deletes cart rows that were turned into bookings. Their seats stay taken.
func (r *CartRepository) Consume(ctx context.Context, userID string, ids []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND id = ANY($2)
		RETURNING id`, userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to consume cart items: %w", err)
	}
	defer rows.Close()

	var consumed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan consumed cart item: %w", err)
		}
		consumed = append(consumed, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consumed cart items: %w", err)
	}

	return consumed, nil
}

// removeWhere deletes matching rows and gives their seats back, all in one transaction
func (r *CartRepository) removeWhere(ctx context.Context, where string, args ...interface{}) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM cart_items
		WHERE `+where+`
		RETURNING id, time_slot_id, ticket_quantities`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete cart items: %w", err)
	}

	var removed []string
	release := make(map[string]int)
	var order []string
	for rows.Next() {
		var id, slotID string
		var quantities models.TicketQuantities
		if err := rows.Scan(&id, &slotID, &quantities); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deleted cart item: %w", err)
		}
		removed = append(removed, id)
		if _, seen := release[slotID]; !seen {
			order = append(order, slotID)
		}
		release[slotID] += quantities.Total()
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating deleted cart items: %w", err)
	}
	rows.Close()

	for _, slotID := range order {
		if _, err := tx.ExecContext(ctx, `
			UPDATE time_slots
			SET available_seats = LEAST(capacity, available_seats + $2)
			WHERE id = $1`, slotID, release[slotID]); err != nil {
			return nil, fmt.Errorf("failed to release seats: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart removal: %w", err)
	}

	return removed, nil
}

func (r *CartRepository) queryItems(ctx context.Context, query string, args ...interface{}) ([]*models.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCartItem(row rowScanner) (*models.CartItem, error) {
	item := &models.CartItem{}
	var exhibitionID, showID sql.NullString

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.TimeSlotID,
		&exhibitionID,
		&showID,
		&item.BookingDate,
		&item.TicketQuantities,
		&item.SubtotalPaise,
		&item.ExpiresAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cart item: %w", err)
	}

	item.Target, err = models.TargetFromColumns(nullableString(exhibitionID), nullableString(showID))
	if err != nil {
		return nil, fmt.Errorf("cart item %s: %w", item.ID, err)
	}

	return item, nil
}
