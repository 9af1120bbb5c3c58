package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// PricingRepository reads the server-side ticket price table
type PricingRepository struct {
	db *sql.DB
}

// NewPricingRepository creates a new pricing repository
func NewPricingRepository(db *sql.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// GetPrices returns ticket type -> price in paise for a target
func (r *PricingRepository) GetPrices(ctx context.Context, target models.Target) (map[string]int64, error) {
	column := "exhibition_id"
	if target.Kind == models.TargetShow {
		column = "show_id"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ticket_type, price_paise
		FROM ticket_prices
		WHERE `+column+` = $1`, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]int64)
	for rows.Next() {
		var ticketType string
		var price int64
		if err := rows.Scan(&ticketType, &price); err != nil {
			return nil, fmt.Errorf("failed to scan ticket price: %w", err)
		}
		prices[ticketType] = price
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket prices: %w", err)
	}

	return prices, nil
}
