package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// TimeSlotRepository reads time slots and adjusts seats outside of cart holds
type TimeSlotRepository struct {
	db *sql.DB
}

// NewTimeSlotRepository creates a new time slot repository
func NewTimeSlotRepository(db *sql.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// GetByID loads a slot with the title of its exhibition or show
func (r *TimeSlotRepository) GetByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := `
		SELECT ts.id, ts.exhibition_id, ts.show_id, ts.slot_date::text, ts.start_time::text,
		       ts.end_time::text, ts.capacity, ts.available_seats, COALESCE(e.title, s.title, '')
		FROM time_slots ts
		LEFT JOIN exhibitions e ON e.id = ts.exhibition_id
		LEFT JOIN shows s ON s.id = ts.show_id
		WHERE ts.id = $1`

	slot := &models.TimeSlot{}
	var exhibitionID, showID sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&slot.ID,
		&exhibitionID,
		&showID,
		&slot.SlotDate,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Capacity,
		&slot.AvailableSeats,
		&slot.Title,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrTimeSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time slot: %w", err)
	}

	slot.Target, err = models.TargetFromColumns(nullableString(exhibitionID), nullableString(showID))
	if err != nil {
		return nil, fmt.Errorf("time slot %s: %w", slot.ID, err)
	}

	return slot, nil
}

// Reclaim takes seats for a booking whose cart hold had already been released.
// Returns ErrInsufficientSeats if the slot cannot cover them.
func (r *TimeSlotRepository) Reclaim(ctx context.Context, id string, seats int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE time_slots
		SET available_seats = available_seats - $2
		WHERE id = $1 AND available_seats >= $2`, id, seats)
	if err != nil {
		return fmt.Errorf("failed to reclaim seats: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrInsufficientSeats
	}

	return nil
}
