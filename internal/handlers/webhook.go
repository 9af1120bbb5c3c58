package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

const (
	headerWebhookSignature = "X-Razorpay-Signature"
	headerWebhookEvent     = "X-Razorpay-Event"
	headerWebhookEventID   = "X-Razorpay-Event-Id"

	maxWebhookBytes = 256 << 10
)

// WebhookProcessor reconciles one gateway callback
type WebhookProcessor interface {
	Handle(ctx context.Context, req services.WebhookRequest) (*services.WebhookResult, error)
}

// WebhookHandler serves POST /api/webhooks/razorpay
type WebhookHandler struct {
	webhooks WebhookProcessor
	logger   *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks WebhookProcessor, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	Processed bool   `json:"processed"`
	EventType string `json:"eventType,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Razorpay verifies the signature over the raw body, so the body is read
// unparsed. A bad signature is a 401 here.
func (h *WebhookHandler) Razorpay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeWebhookError(w, h.logger, models.NewValidationError("Unreadable webhook body", nil), 0)
		return
	}

	result, err := h.webhooks.Handle(r.Context(), services.WebhookRequest{
		Body:      body,
		Signature: r.Header.Get(headerWebhookSignature),
		EventHint: r.Header.Get(headerWebhookEvent),
		EventID:   r.Header.Get(headerWebhookEventID),
		Meta:      services.RequestMetaFrom(r),
	})
	if err != nil {
		status := 0
		if models.IsKind(err, models.KindSignature) {
			status = http.StatusUnauthorized
		}
		writeWebhookError(w, h.logger, err, status)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Success:   true,
		Processed: result.Processed,
		EventType: result.EventType,
		Duplicate: result.Duplicate,
	})
}

// webhookErrorResponse is the error envelope with the message repeated under error
type webhookErrorResponse struct {
	errorResponse
	Error string `json:"error"`
}

func writeWebhookError(w http.ResponseWriter, logger *logrus.Logger, err error, status int) {
	status, body := errorBody(logger, err, status)
	writeJSON(w, status, webhookErrorResponse{errorResponse: body, Error: body.Message})
}
