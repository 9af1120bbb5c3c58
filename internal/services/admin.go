package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// AdminService backs the operator endpoints and museumctl
type AdminService struct {
	orders   PaymentOrderStore
	webhooks *WebhookService
	audit    *AuditService
	logger   *logrus.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(orders PaymentOrderStore, webhooks *WebhookService, audit *AuditService, logger *logrus.Logger) *AdminService {
	return &AdminService{
		orders:   orders,
		webhooks: webhooks,
		audit:    audit,
		logger:   logger,
	}
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 || limit > max {
		return fallback
	}
	return limit
}

// ReconciliationQueue lists paid orders that produced per-item failures and
// captures that arrived after their order had failed or expired
func (s *AdminService) ReconciliationQueue(ctx context.Context, limit int) ([]*models.PaymentOrder, error) {
	orders, err := s.orders.ListNeedingReconciliation(ctx, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, models.NewInternalError("Failed to load reconciliation queue", err)
	}
	if orders == nil {
		orders = []*models.PaymentOrder{}
	}
	return orders, nil
}

// WebhookEvents lists recently received gateway callbacks
func (s *AdminService) WebhookEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	return s.webhooks.ListRecent(ctx, clampLimit(limit, 50, 500))
}

// AuditLogs lists admin actions and security events
func (s *AdminService) AuditLogs(ctx context.Context, action string, page, limit int) ([]*models.AuditLog, error) {
	logs, err := s.audit.GetAuditLogs(ctx, action, page, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	return logs, nil
}
