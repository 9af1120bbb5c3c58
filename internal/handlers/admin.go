package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// AdminReader backs the read-only reconciliation views
type AdminReader interface {
	ReconciliationQueue(ctx context.Context, limit int) ([]*models.PaymentOrder, error)
	WebhookEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error)
	AuditLogs(ctx context.Context, action string, page, limit int) ([]*models.AuditLog, error)
}

// AdminHandler serves the back-office reconciliation endpoints
type AdminHandler struct {
	admin  AdminReader
	logger *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin AdminReader, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// Reconciliation lists paid orders that produced no bookings
func (h *AdminHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	orders, err := h.admin.ReconciliationQueue(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"orders": orders, "count": len(orders)})
}

func (h *AdminHandler) WebhookEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.admin.WebhookEvents(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

// AuditLogs lists audit rows, optionally filtered by ?action=
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	logs, err := h.admin.AuditLogs(r.Context(), r.URL.Query().Get("action"), page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"logs": logs, "page": page, "limit": limit})
}
