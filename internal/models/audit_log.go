package models

import (
	"encoding/json"
	"time"
)

// AuditLog represents an administrative action or security event
type AuditLog struct {
	ID         string          `json:"id" db:"id"`
	ActorID    *string         `json:"actorId,omitempty" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	TargetType string          `json:"targetType" db:"target_type"`
	TargetID   string          `json:"targetId" db:"target_id"`
	Details    json.RawMessage `json:"details" db:"details"`
	IPAddress  string          `json:"ipAddress" db:"ip_address"`
	UserAgent  string          `json:"userAgent" db:"user_agent"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// AuditLogCreateRequest represents a request to create an audit log entry
type AuditLogCreateRequest struct {
	ActorID    *string
	Action     string
	TargetType string
	TargetID   string
	Details    json.RawMessage
	IPAddress  string
	UserAgent  string
}

// Common audit actions
const (
	AuditActionSettingsUpdate           = "settings_update"
	AuditActionPaymentSignatureMismatch = "payment_signature_mismatch"
	AuditActionWebhookSignatureMismatch = "webhook_signature_mismatch"
	AuditActionUnreconciledCapture      = "unreconciled_capture"
	AuditActionTicketsIssued            = "tickets_issued"
	AuditActionLateCapture              = "late_capture"
)

// Common target types
const (
	AuditTargetSettings     = "settings"
	AuditTargetPaymentOrder = "payment_order"
	AuditTargetWebhook      = "webhook"
)
