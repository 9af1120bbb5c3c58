package models

import (
	"time"
)

// SystemSettings represents operator-controlled booking and payment settings
type SystemSettings struct {
	ID                   int       `json:"id" db:"id"`
	AutoGenerateTickets  bool      `json:"autoGenerateTickets" db:"auto_generate_tickets"`
	NotificationsEnabled bool      `json:"notificationsEnabled" db:"notifications_enabled"`
	SupportEmail         string    `json:"supportEmail" db:"support_email"`
	MaxTicketsPerItem    int       `json:"maxTicketsPerItem" db:"max_tickets_per_item"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

// SettingsUpdateRequest represents a request to update system settings
type SettingsUpdateRequest struct {
	AutoGenerateTickets  *bool   `json:"autoGenerateTickets"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	SupportEmail         *string `json:"supportEmail" validate:"omitempty,email"`
	MaxTicketsPerItem    *int    `json:"maxTicketsPerItem" validate:"omitempty,min=1,max=100"`
}

// DefaultSettings returns the default system settings
func DefaultSettings() *SystemSettings {
	return &SystemSettings{
		AutoGenerateTickets:  true,
		NotificationsEnabled: true,
		SupportEmail:         "support@museum.example",
		MaxTicketsPerItem:    20,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
}
