package models

import (
	"encoding/json"
	"time"
)

// WebhookEventType enumerates the gateway callbacks we understand
type WebhookEventType string

const (
	WebhookPaymentInitiated  WebhookEventType = "payment.initiated"
	WebhookPaymentProcessing WebhookEventType = "payment.processing"
	WebhookPaymentCompleted  WebhookEventType = "payment.completed"
	WebhookPaymentFailed     WebhookEventType = "payment.failed"
	WebhookPaymentExpired    WebhookEventType = "payment.expired"
)

// gateway names that mean the same thing as payment.completed
var webhookAliases = map[string]WebhookEventType{
	"payment.captured": WebhookPaymentCompleted,
	"order.paid":       WebhookPaymentCompleted,
}

// ParseWebhookEventType maps a raw event name to a known type.
// ok is false for events we do not handle.
func ParseWebhookEventType(raw string) (WebhookEventType, bool) {
	switch t := WebhookEventType(raw); t {
	case WebhookPaymentInitiated, WebhookPaymentProcessing, WebhookPaymentCompleted,
		WebhookPaymentFailed, WebhookPaymentExpired:
		return t, true
	}
	if t, ok := webhookAliases[raw]; ok {
		return t, true
	}
	return "", false
}

// WebhookPayload is the JSON body posted by the gateway
type WebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity WebhookPaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at,omitempty"`
}

// WebhookPaymentEntity is the payment object inside a webhook payload
type WebhookPaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Entity is a shortcut to the payment entity
func (p *WebhookPayload) Entity() WebhookPaymentEntity {
	return p.Payload.Payment.Entity
}

// WebhookEvent is an append-only audit row for a received callback
type WebhookEvent struct {
	ID               string          `json:"id"`
	EventID          *string         `json:"eventId,omitempty"`
	EventType        string          `json:"eventType"`
	GatewayOrderID   *string         `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string         `json:"gatewayPaymentId,omitempty"`
	Signature        string          `json:"-"`
	Payload          json.RawMessage `json:"payload"`
	Processed        bool            `json:"processed"`
	Error            *string         `json:"error,omitempty"`
	ReceivedAt       time.Time       `json:"receivedAt"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
}

// WebhookEventCreateRequest is what the reconciler records before processing
type WebhookEventCreateRequest struct {
	EventID          *string
	EventType        string
	GatewayOrderID   *string
	GatewayPaymentID *string
	Signature        string
	Payload          json.RawMessage
}
