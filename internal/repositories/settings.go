package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"museum-ticketing-platform/internal/models"
)

// SettingsRepository handles system settings data operations
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings retrieves the current system settings
func (r *SettingsRepository) GetSettings(ctx context.Context) (*models.SystemSettings, error) {
	query := `
		SELECT id, auto_generate_tickets, notifications_enabled, support_email,
		       max_tickets_per_item, created_at, updated_at
		FROM system_settings
		ORDER BY id DESC
		LIMIT 1`

	settings := &models.SystemSettings{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&settings.ID,
		&settings.AutoGenerateTickets,
		&settings.NotificationsEnabled,
		&settings.SupportEmail,
		&settings.MaxTicketsPerItem,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		// Return default settings if none exist
		return models.DefaultSettings(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return settings, nil
}

// UpdateSettings applies the update on top of the current settings and stores
// the result as a new row, keeping history
func (r *SettingsRepository) UpdateSettings(ctx context.Context, req *models.SettingsUpdateRequest) (*models.SystemSettings, error) {
	current, err := r.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current settings: %w", err)
	}

	if req.AutoGenerateTickets != nil {
		current.AutoGenerateTickets = *req.AutoGenerateTickets
	}
	if req.NotificationsEnabled != nil {
		current.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.SupportEmail != nil {
		current.SupportEmail = *req.SupportEmail
	}
	if req.MaxTicketsPerItem != nil {
		current.MaxTicketsPerItem = *req.MaxTicketsPerItem
	}

	current.UpdatedAt = time.Now()

	query := `
		INSERT INTO system_settings (
			auto_generate_tickets, notifications_enabled, support_email,
			max_tickets_per_item, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		current.AutoGenerateTickets,
		current.NotificationsEnabled,
		current.SupportEmail,
		current.MaxTicketsPerItem,
		current.CreatedAt,
		current.UpdatedAt,
	).Scan(&current.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	return current, nil
}
