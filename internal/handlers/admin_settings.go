package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

// SettingsManager reads and updates the payment settings
type SettingsManager interface {
	GetSettings(ctx context.Context) (*models.SystemSettings, error)
	UpdateSettings(ctx context.Context, principal *models.Principal, req *models.SettingsUpdateRequest, meta services.RequestMeta) (*models.SystemSettings, error)
}

// AdminSettingsHandler handles admin settings management
type AdminSettingsHandler struct {
	settings SettingsManager
	logger   *logrus.Logger
}

// NewAdminSettingsHandler creates a new admin settings handler
func NewAdminSettingsHandler(settings SettingsManager, logger *logrus.Logger) *AdminSettingsHandler {
	return &AdminSettingsHandler{settings: settings, logger: logger}
}

// Get returns the current settings
func (h *AdminSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetSettings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, settings)
}

// Update applies a partial settings change; omitted fields keep their value
func (h *AdminSettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.SettingsUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	settings, err := h.settings.UpdateSettings(r.Context(), middleware.PrincipalFrom(r.Context()), &req, services.RequestMetaFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: settings, Message: "Settings updated"})
}
