package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// RequestMeta is the caller information stored with audit rows
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// RequestMetaFrom extracts audit metadata from an HTTP request
func RequestMetaFrom(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// AuditService handles audit logging operations
type AuditService struct {
	auditRepo AuditLogStore
	logger    *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo AuditLogStore, logger *logrus.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// LogAction records an admin action or security event. Failures are logged only.
func (s *AuditService) LogAction(ctx context.Context, actorID *string, action, targetType, targetID string, details interface{}, meta RequestMeta) {
	var detailsJSON json.RawMessage
	if details != nil {
		detailsBytes, err := json.Marshal(details)
		if err != nil {
			s.logger.WithError(err).WithField("action", action).Warn("Failed to encode audit details")
		} else {
			detailsJSON = detailsBytes
		}
	}

	req := &models.AuditLogCreateRequest{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    detailsJSON,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}

	if _, err := s.auditRepo.Create(ctx, req); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    action,
			"target_id": targetID,
		}).Error("Failed to write audit log")
	}
}

// GetAuditLogs retrieves audit logs with pagination and optional action filter
func (s *AuditService) GetAuditLogs(ctx context.Context, action string, page, limit int) ([]*models.AuditLog, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit
	logs, err := s.auditRepo.GetAll(ctx, action, limit, offset)
	if err != nil {
		return nil, models.NewInternalError("Failed to load audit logs", err)
	}
	return logs, nil
}

// getClientIP prefers proxy headers over RemoteAddr
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return r.RemoteAddr
}
