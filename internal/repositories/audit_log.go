package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// AuditLogRepository handles audit log data operations
type AuditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditLogRepository) Create(ctx context.Context, req *models.AuditLogCreateRequest) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (actor_id, action, target_type, target_id, details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	auditLog := &models.AuditLog{
		ActorID:    req.ActorID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Details:    req.Details,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}

	var details interface{}
	if len(req.Details) > 0 {
		details = []byte(req.Details)
	}

	err := r.db.QueryRowContext(ctx, query,
		req.ActorID,
		req.Action,
		req.TargetType,
		req.TargetID,
		details,
		req.IPAddress,
		req.UserAgent,
	).Scan(&auditLog.ID, &auditLog.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return auditLog, nil
}

// GetAll retrieves audit logs, optionally filtered by action, newest first
func (r *AuditLogRepository) GetAll(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, actor_id, action, target_type, target_id, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE ($1 = '' OR action = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var auditLogs []*models.AuditLog
	for rows.Next() {
		auditLog := &models.AuditLog{}
		var actorID, ip, ua sql.NullString
		var details []byte

		err := rows.Scan(
			&auditLog.ID,
			&actorID,
			&auditLog.Action,
			&auditLog.TargetType,
			&auditLog.TargetID,
			&details,
			&ip,
			&ua,
			&auditLog.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		auditLog.ActorID = nullableString(actorID)
		auditLog.Details = details
		auditLog.IPAddress = ip.String
		auditLog.UserAgent = ua.String
		auditLogs = append(auditLogs, auditLog)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return auditLogs, nil
}
