package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// WebhookEventRepository is the append-only audit log of gateway callbacks
type WebhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

const webhookEventColumns = `id, event_id, event_type, gateway_order_id, gateway_payment_id, signature,
	payload, processed, error, received_at, processed_at`

const webhookEventIDConstraint = "webhook_events_event_id_key"

// Create records a received event with processed=false
func (r *WebhookEventRepository) Create(ctx context.Context, req *models.WebhookEventCreateRequest) (*models.WebhookEvent, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, gateway_order_id, gateway_payment_id, signature, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + webhookEventColumns

	event, err := scanWebhookEvent(r.db.QueryRowContext(ctx, query,
		req.EventID, req.EventType, req.GatewayOrderID, req.GatewayPaymentID, req.Signature, []byte(req.Payload),
	))
	if err != nil {
		if isUniqueViolation(err, webhookEventIDConstraint) {
			return nil, models.ErrDuplicateWebhook
		}
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}

	return event, nil
}

// GetByEventID looks up an earlier delivery of the same gateway event
func (r *WebhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE event_id = $1`

	event, err := scanWebhookEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err == sql.ErrNoRows {
		return nil, models.ErrWebhookEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return event, nil
}

// MarkProcessed stores the processing outcome for an event
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, processed bool, processingErr *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET processed = $2, error = $3, processed_at = NOW()
		WHERE id = $1`, id, processed, processingErr)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	return nil
}

// ListRecent returns the latest events, newest first
func (r *WebhookEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + `
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}

	return events, nil
}

func scanWebhookEvent(row rowScanner) (*models.WebhookEvent, error) {
	event := &models.WebhookEvent{}
	var eventID, orderID, paymentID, processingErr sql.NullString
	var processedAt sql.NullTime
	var payload []byte

	err := row.Scan(
		&event.ID,
		&eventID,
		&event.EventType,
		&orderID,
		&paymentID,
		&event.Signature,
		&payload,
		&event.Processed,
		&processingErr,
		&event.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	event.EventID = nullableString(eventID)
	event.GatewayOrderID = nullableString(orderID)
	event.GatewayPaymentID = nullableString(paymentID)
	event.Error = nullableString(processingErr)
	event.ProcessedAt = nullableTime(processedAt)
	event.Payload = payload

	return event, nil
}
