package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// SettingsService handles operator settings
type SettingsService struct {
	settingsRepo SettingsStore
	audit        *AuditService
	logger       *logrus.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(settingsRepo SettingsStore, audit *AuditService, logger *logrus.Logger) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
		audit:        audit,
		logger:       logger,
	}
}

// GetSettings retrieves the current system settings
func (s *SettingsService) GetSettings(ctx context.Context) (*models.SystemSettings, error) {
	settings, err := s.settingsRepo.GetSettings(ctx)
	if err != nil {
		return nil, models.NewInternalError("Failed to load settings", err)
	}
	return settings, nil
}

// Current implements SettingsProvider
func (s *SettingsService) Current(ctx context.Context) *models.SystemSettings {
	settings, err := s.settingsRepo.GetSettings(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load settings, using defaults")
		return models.DefaultSettings()
	}
	return settings
}

// UpdateSettings validates and stores a new settings version, writing an audit row
func (s *SettingsService) UpdateSettings(ctx context.Context, principal *models.Principal, req *models.SettingsUpdateRequest, meta RequestMeta) (*models.SystemSettings, error) {
	if !principal.IsAdmin() {
		return nil, models.NewAuthError("Admin access required")
	}
	if err := validateStruct("Invalid settings", req); err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.UpdateSettings(ctx, req)
	if err != nil {
		return nil, models.NewInternalError("Failed to update settings", err)
	}

	actor := principal.UserID
	s.audit.LogAction(ctx, &actor, models.AuditActionSettingsUpdate, models.AuditTargetSettings, "system", req, meta)

	s.logger.WithFields(logrus.Fields{
		"user_id":               principal.UserID,
		"auto_generate_tickets": settings.AutoGenerateTickets,
		"notifications_enabled": settings.NotificationsEnabled,
	}).Info("Settings updated")

	return settings, nil
}
