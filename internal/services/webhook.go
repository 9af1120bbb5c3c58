package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// WebhookRequest is a raw gateway callback as received over HTTP
type WebhookRequest struct {
	Body      []byte
	Signature string
	EventHint string
	EventID   string
	Meta      RequestMeta
}

// WebhookResult tells the gateway whether the event changed anything
type WebhookResult struct {
	Processed bool   `json:"processed"`
	EventType string `json:"eventType,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// WebhookService reconciles payment state from gateway callbacks
type WebhookService struct {
	events     WebhookEventStore
	orders     PaymentOrderStore
	bookings   BookingStore
	gateway    PaymentGateway
	completion *PaymentCompletion
	audit      *AuditService
	metrics    *Metrics
	logger     *logrus.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	events WebhookEventStore,
	orders PaymentOrderStore,
	bookings BookingStore,
	gateway PaymentGateway,
	completion *PaymentCompletion,
	audit *AuditService,
	metrics *Metrics,
	logger *logrus.Logger,
) *WebhookService {
	return &WebhookService{
		events:     events,
		orders:     orders,
		bookings:   bookings,
		gateway:    gateway,
		completion: completion,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle verifies, records and processes one callback.
// Every event with a valid signature is recorded before it is processed.
func (s *WebhookService) Handle(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	s.metrics.WebhookReceived()

	if !s.gateway.VerifyWebhookSignature(req.Body, req.Signature) {
		s.metrics.SignatureFailure()
		s.logger.WithFields(logrus.Fields{
			"security_event": true,
			"ip_address":     req.Meta.IPAddress,
			"event_hint":     req.EventHint,
		}).Warn("Webhook signature mismatch")
		s.audit.LogAction(ctx, nil, models.AuditActionWebhookSignatureMismatch, models.AuditTargetWebhook,
			req.EventID, map[string]string{"eventHint": req.EventHint}, req.Meta)
		return nil, models.NewSignatureError("Invalid webhook signature")
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, models.NewValidationError("Malformed webhook payload", map[string]string{"body": "json"})
	}

	rawEvent := payload.Event
	if rawEvent == "" {
		rawEvent = req.EventHint
	}
	if rawEvent == "" {
		return nil, models.NewValidationError("Webhook event type is missing", map[string]string{"event": "required"})
	}

	eventType, known := models.ParseWebhookEventType(rawEvent)
	entity := payload.Entity()
	if known && entity.OrderID == "" {
		return nil, models.NewValidationError("Webhook payload has no order id", map[string]string{"payload.payment.entity.order_id": "required"})
	}

	log := s.logger.WithFields(logrus.Fields{
		"event_type":       rawEvent,
		"event_id":         req.EventID,
		"gateway_order_id": entity.OrderID,
		"payment_id":       entity.ID,
	})

	event, duplicate, err := s.record(ctx, req, rawEvent, entity)
	if err != nil {
		return nil, err
	}
	if duplicate {
		log.Info("Duplicate webhook delivery acknowledged")
		return &WebhookResult{Processed: true, EventType: rawEvent, Duplicate: true}, nil
	}

	if !known {
		log.Info("Ignoring unhandled webhook event")
		s.markProcessed(ctx, log, event.ID, false, nil)
		return &WebhookResult{Processed: false, EventType: rawEvent}, nil
	}

	processed, procErr := s.process(ctx, log, eventType, entity)

	var errText *string
	if procErr != nil {
		text := procErr.Error()
		errText = &text
	}
	s.markProcessed(ctx, log, event.ID, processed, errText)

	if procErr != nil && !processed {
		log.WithError(procErr).Error("Webhook processing failed")
		if appErr, ok := models.AsAppError(procErr); ok && appErr.Kind == models.KindInternal {
			return nil, appErr
		}
		return nil, models.NewInternalError("Webhook processing failed", procErr)
	}

	return &WebhookResult{Processed: processed, EventType: string(eventType)}, nil
}

// record stores the event. duplicate is true when the same gateway event id
// was already processed; an earlier delivery that failed is processed again.
func (s *WebhookService) record(ctx context.Context, req WebhookRequest, rawEvent string, entity models.WebhookPaymentEntity) (*models.WebhookEvent, bool, error) {
	var eventID *string
	if req.EventID != "" {
		eventID = &req.EventID

		existing, err := s.events.GetByEventID(ctx, req.EventID)
		switch {
		case err == nil:
			if existing.Processed {
				return existing, true, nil
			}
			return existing, false, nil
		case !errors.Is(err, models.ErrWebhookEventNotFound):
			return nil, false, models.NewInternalError("Failed to look up webhook event", err)
		}
	}

	event, err := s.events.Create(ctx, &models.WebhookEventCreateRequest{
		EventID:          eventID,
		EventType:        rawEvent,
		GatewayOrderID:   optionalString(entity.OrderID),
		GatewayPaymentID: optionalString(entity.ID),
		Signature:        req.Signature,
		Payload:          json.RawMessage(req.Body),
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateWebhook) {
			// a concurrent delivery of the same event got there first
			return nil, true, nil
		}
		return nil, false, models.NewInternalError("Failed to record webhook event", err)
	}
	return event, false, nil
}

// process applies one known event. processed reports whether the event was
// fully handled; err carries any problem worth recording on the event row.
func (s *WebhookService) process(ctx context.Context, log *logrus.Entry, eventType models.WebhookEventType, entity models.WebhookPaymentEntity) (bool, error) {
	switch eventType {
	case models.WebhookPaymentInitiated, models.WebhookPaymentProcessing:
		log.Debug("Payment progress event recorded")
		return true, nil
	}

	order, err := s.orders.GetByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrPaymentOrderNotFound) {
			log.Warn("Webhook for unknown payment order")
			return false, nil
		}
		return false, models.NewInternalError("Failed to load payment order", err)
	}

	switch eventType {
	case models.WebhookPaymentCompleted:
		return s.completed(ctx, log, order, entity)

	case models.WebhookPaymentFailed:
		moved, err := s.orders.TransitionStatus(ctx, order.GatewayOrderID, models.PaymentOrderCreated, models.PaymentOrderFailed)
		if err != nil {
			return false, models.NewInternalError("Failed to mark payment order failed", err)
		}
		updated, err := s.bookings.UpdatePaymentStatusForOrder(ctx, order.ID,
			[]models.BookingPaymentStatus{models.BookingPaymentPending}, models.BookingPaymentFailed)
		if err != nil {
			return false, models.NewInternalError("Failed to update booking payment status", err)
		}
		log.WithFields(logrus.Fields{
			"order_failed":     moved,
			"bookings_updated": updated,
			"reason":           entity.ErrorDescription,
		}).Info("Payment failed")
		return true, nil

	case models.WebhookPaymentExpired:
		moved, err := s.orders.TransitionStatus(ctx, order.GatewayOrderID, models.PaymentOrderCreated, models.PaymentOrderExpired)
		if err != nil {
			return false, models.NewInternalError("Failed to mark payment order expired", err)
		}
		log.WithField("order_expired", moved).Info("Payment order expired")
		return true, nil
	}

	return false, nil
}

func (s *WebhookService) completed(ctx context.Context, log *logrus.Entry, order *models.PaymentOrder, entity models.WebhookPaymentEntity) (bool, error) {
	if order.IsPaid() {
		if _, err := s.completion.Reconcile(ctx, order); err != nil {
			return false, err
		}
		return true, nil
	}

	_, err := s.completion.Apply(ctx, order, entity.ID, nil, SourceWebhook)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrOrderClosed):
		// already flagged for reconciliation; a retry cannot do better
		return true, err
	case models.IsKind(err, models.KindConflict):
		// verification won the race between our read and the update
		if _, err := s.completion.Reconcile(ctx, order); err != nil {
			return false, err
		}
		return true, nil
	case models.IsKind(err, models.KindPartialBatch):
		// the order is paid and flagged; a retry cannot do better
		log.WithError(err).Error("Webhook capture produced no bookings")
		return true, err
	}
	return false, err
}

func (s *WebhookService) markProcessed(ctx context.Context, log *logrus.Entry, id string, processed bool, errText *string) {
	if err := s.events.MarkProcessed(ctx, id, processed, errText); err != nil {
		log.WithError(err).Error("Failed to update webhook event")
	}
}

// ListRecent returns recently received events for operators
func (s *WebhookService) ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, models.NewInternalError("Failed to load webhook events", err)
	}
	if events == nil {
		events = []*models.WebhookEvent{}
	}
	return events, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
