package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// maxReferenceAttempts bounds regeneration after a reference unique violation
const maxReferenceAttempts = 3

// CompletionSource names the trigger that settled an order
type CompletionSource string

const (
	SourceVerification CompletionSource = "verification"
	SourceWebhook      CompletionSource = "webhook"
)

// MaterializeResult is what one pass over a cart snapshot produced
type MaterializeResult struct {
	Bookings []*models.Booking  `json:"bookings"`
	Tickets  []*models.Ticket   `json:"tickets"`
	Errors   []models.ItemError `json:"errors,omitempty"`
}

// PaymentCompletion owns the paid transition and turns a cart snapshot into
// bookings and tickets. Verification and webhooks both go through Apply.
type PaymentCompletion struct {
	orders     PaymentOrderStore
	bookings   BookingStore
	tickets    TicketStore
	slots      TimeSlotStore
	carts      CartStore
	settings   SettingsProvider
	dispatcher Dispatcher
	audit      *AuditService
	metrics    *Metrics
	logger     *logrus.Logger

	newReference func() (string, error)
}

// NewPaymentCompletion creates the shared completion path
func NewPaymentCompletion(
	orders PaymentOrderStore,
	bookings BookingStore,
	tickets TicketStore,
	slots TimeSlotStore,
	carts CartStore,
	settings SettingsProvider,
	dispatcher Dispatcher,
	audit *AuditService,
	metrics *Metrics,
	logger *logrus.Logger,
) *PaymentCompletion {
	return &PaymentCompletion{
		orders:     orders,
		bookings:   bookings,
		tickets:    tickets,
		slots:      slots,
		carts:      carts,
		settings:   settings,
		dispatcher: dispatcher,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,

		newReference: models.GenerateBookingReference,
	}
}

// Apply marks the order paid and materializes its snapshot. Only the caller
// that wins the paid transition materializes; a loser gets CONFLICT.
// Per-item failures are returned in the result; a PARTIAL_BATCH_ERROR is
// returned only when no booking at all could be created.
func (c *PaymentCompletion) Apply(ctx context.Context, order *models.PaymentOrder, paymentID string, signature *string, source CompletionSource) (*MaterializeResult, error) {
	log := c.logger.WithFields(logrus.Fields{
		"order_id":         order.ID,
		"gateway_order_id": order.GatewayOrderID,
		"payment_id":       paymentID,
		"source":           source,
	})

	paid, err := c.orders.MarkPaid(ctx, order.ID, paymentID, signature)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrOrderAlreadyPaid):
			return nil, models.NewConflictError("Payment already processed", err)
		case errors.Is(err, models.ErrOrderClosed):
			c.recordLateCapture(ctx, log, order, paymentID)
			return nil, models.NewConflictError("Payment order is no longer open", err)
		case errors.Is(err, models.ErrPaymentOrderNotFound):
			return nil, models.NewNotFoundError("Payment order not found", err)
		}
		return nil, models.NewInternalError("Failed to update payment order", err)
	}
	log.Info("Payment order marked paid")

	userID := paid.UserID
	result, booked := c.materialize(ctx, paid.CartSnapshot, paid.Contact, &userID, &paid.ID, &paymentID, c.settings.Current(ctx))
	c.settleCart(ctx, paid.UserID, booked)

	if len(result.Errors) > 0 {
		if err := c.orders.FlagForReconciliation(ctx, paid.ID, result.Errors); err != nil {
			log.WithError(err).Error("Failed to flag payment order for reconciliation")
		}
	}

	c.metrics.BookingsCreated(len(result.Bookings))
	c.metrics.ItemErrors(len(result.Errors))

	if len(result.Bookings) == 0 {
		c.metrics.UnreconciledCapture()
		log.WithFields(logrus.Fields{
			"unreconciled_capture": true,
			"amount_paise":         paid.AmountPaise,
			"errors":               len(result.Errors),
		}).Error("Payment captured but no bookings could be created")
		c.audit.LogAction(ctx, nil, models.AuditActionUnreconciledCapture, models.AuditTargetPaymentOrder, paid.ID,
			map[string]interface{}{"paymentId": paymentID, "errors": result.Errors}, RequestMeta{})
		return result, models.NewPartialBatchError("Payment captured but no bookings could be created", result.Errors)
	}

	log.WithFields(logrus.Fields{
		"bookings": len(result.Bookings),
		"tickets":  len(result.Tickets),
		"errors":   len(result.Errors),
	}).Info("Bookings created from payment")

	c.notify(ctx, result.Bookings[0], paymentID)
	return result, nil
}

// recordLateCapture handles money captured for an order that already failed or
// expired. No seats are booked; the order goes to the reconciliation queue so an
// operator can refund or book by hand.
func (c *PaymentCompletion) recordLateCapture(ctx context.Context, log *logrus.Entry, order *models.PaymentOrder, paymentID string) {
	c.metrics.UnreconciledCapture()
	log.WithFields(logrus.Fields{
		"late_capture": true,
		"amount_paise": order.AmountPaise,
	}).Error("Payment captured for a closed payment order")

	failures := models.ItemErrors{{
		Code:    models.CodeLateCapture,
		Message: fmt.Sprintf("payment %s captured after the order closed", paymentID),
	}}
	if err := c.orders.FlagForReconciliation(ctx, order.ID, failures); err != nil {
		log.WithError(err).Error("Failed to flag payment order for reconciliation")
	}

	c.audit.LogAction(ctx, nil, models.AuditActionLateCapture, models.AuditTargetPaymentOrder, order.ID,
		map[string]interface{}{"paymentId": paymentID, "amountPaise": order.AmountPaise}, RequestMeta{})
}

// MaterializeFree books a zero-total cart without a payment order
func (c *PaymentCompletion) MaterializeFree(ctx context.Context, principal *models.Principal, contact models.ContactDetails, items []*models.CartItem) (*MaterializeResult, error) {
	snapshot := make(models.CartSnapshot, 0, len(items))
	for _, item := range items {
		snapshot = append(snapshot, item.Snapshot())
	}

	userID := principal.UserID
	result, booked := c.materialize(ctx, snapshot, contact, &userID, nil, nil, c.settings.Current(ctx))
	c.settleCart(ctx, principal.UserID, booked)

	c.metrics.BookingsCreated(len(result.Bookings))
	c.metrics.ItemErrors(len(result.Errors))

	if len(result.Bookings) == 0 {
		return result, models.NewPartialBatchError("No bookings could be created", result.Errors)
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":  principal.UserID,
		"bookings": len(result.Bookings),
		"errors":   len(result.Errors),
	}).Info("Free checkout completed")

	c.notify(ctx, result.Bookings[0], "")
	return result, nil
}

// Reconcile brings an order that is already paid into its final state: bookings
// marked paid and tickets present. Safe to run any number of times.
func (c *PaymentCompletion) Reconcile(ctx context.Context, order *models.PaymentOrder) (*MaterializeResult, error) {
	updated, err := c.bookings.UpdatePaymentStatusForOrder(ctx, order.ID,
		[]models.BookingPaymentStatus{models.BookingPaymentPending, models.BookingPaymentFailed},
		models.BookingPaymentPaid)
	if err != nil {
		return nil, models.NewInternalError("Failed to update booking payment status", err)
	}

	result, err := c.ensureTickets(ctx, order)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":         order.ID,
		"gateway_order_id": order.GatewayOrderID,
		"bookings_updated": updated,
		"tickets":          len(result.Tickets),
	}).Info("Paid order reconciled")

	return result, nil
}

// IssueTickets creates any missing tickets for a paid order's bookings,
// regardless of the auto-generation setting
func (c *PaymentCompletion) IssueTickets(ctx context.Context, gatewayOrderID string) (*MaterializeResult, error) {
	order, err := c.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, models.ErrPaymentOrderNotFound) {
			return nil, models.NewNotFoundError("Payment order not found", err)
		}
		return nil, models.NewInternalError("Failed to load payment order", err)
	}
	if !order.IsPaid() {
		return nil, models.NewConflictError(fmt.Sprintf("Payment order is %s, not paid", order.Status), models.ErrInvalidTransition)
	}

	result, err := c.issueAll(ctx, order)
	if err != nil {
		return nil, err
	}

	c.audit.LogAction(ctx, nil, models.AuditActionTicketsIssued, models.AuditTargetPaymentOrder, order.ID,
		map[string]interface{}{"tickets": len(result.Tickets)}, RequestMeta{})
	return result, nil
}

func (c *PaymentCompletion) ensureTickets(ctx context.Context, order *models.PaymentOrder) (*MaterializeResult, error) {
	if !c.settings.Current(ctx).AutoGenerateTickets {
		bookings, err := c.bookings.ListByPaymentOrder(ctx, order.ID)
		if err != nil {
			return nil, models.NewInternalError("Failed to load bookings", err)
		}
		return &MaterializeResult{Bookings: bookings, Tickets: []*models.Ticket{}}, nil
	}
	return c.issueAll(ctx, order)
}

func (c *PaymentCompletion) issueAll(ctx context.Context, order *models.PaymentOrder) (*MaterializeResult, error) {
	bookings, err := c.bookings.ListByPaymentOrder(ctx, order.ID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load bookings", err)
	}

	result := &MaterializeResult{Bookings: bookings, Tickets: []*models.Ticket{}}
	for _, booking := range bookings {
		ticket, err := c.createTicket(ctx, booking)
		if err != nil {
			result.Errors = append(result.Errors, models.ItemError{
				TimeSlotID: booking.TimeSlotID,
				Code:       models.CodeTicketInsertFailed,
				Message:    err.Error(),
			})
			continue
		}
		result.Tickets = append(result.Tickets, ticket)
	}
	return result, nil
}

// materialize creates one booking (and optionally one ticket) per snapshot item.
// Items are independent: a failure is recorded and the loop moves on.
// booked lists the snapshot items that became bookings.
func (c *PaymentCompletion) materialize(
	ctx context.Context,
	snapshot models.CartSnapshot,
	contact models.ContactDetails,
	userID, paymentOrderID, paymentID *string,
	settings *models.SystemSettings,
) (result *MaterializeResult, booked []models.CartSnapshotItem) {
	result = &MaterializeResult{
		Bookings: []*models.Booking{},
		Tickets:  []*models.Ticket{},
	}

	for _, item := range snapshot {
		itemErr := func(code, message string) models.ItemError {
			return models.ItemError{
				CartItemID: item.CartItemID,
				TimeSlotID: item.TimeSlotID,
				Code:       code,
				Message:    message,
			}
		}

		slot, err := c.slots.GetByID(ctx, item.TimeSlotID)
		if err != nil {
			if errors.Is(err, models.ErrTimeSlotNotFound) {
				result.Errors = append(result.Errors, itemErr(models.CodeTimeSlotNotFound, "Time slot no longer exists"))
			} else {
				result.Errors = append(result.Errors, itemErr(models.CodeBookingInsertFailed, err.Error()))
			}
			continue
		}

		// The slot row decides the visit date and target, not the snapshot.
		booking, err := c.createBooking(ctx, &models.BookingCreateRequest{
			UserID:           userID,
			Contact:          contact,
			TimeSlotID:       slot.ID,
			Target:           slot.Target,
			BookingDate:      slot.SlotDate,
			TicketQuantities: item.TicketQuantities,
			TotalAmountPaise: item.SubtotalPaise,
			Status:           models.BookingConfirmed,
			PaymentStatus:    models.BookingPaymentPaid,
			PaymentOrderID:   paymentOrderID,
			PaymentID:        paymentID,
		})
		if err != nil {
			code := models.CodeBookingInsertFailed
			if errors.Is(err, models.ErrDuplicateReference) || errors.Is(err, models.ErrReferenceGeneration) {
				code = models.CodeReferenceConflict
			}
			result.Errors = append(result.Errors, itemErr(code, err.Error()))
			continue
		}
		result.Bookings = append(result.Bookings, booking)
		booked = append(booked, item)

		if !settings.AutoGenerateTickets {
			continue
		}

		ticket, err := c.createTicket(ctx, booking)
		if err != nil {
			result.Errors = append(result.Errors, itemErr(models.CodeTicketInsertFailed, err.Error()))
			continue
		}
		result.Tickets = append(result.Tickets, ticket)
	}

	return result, booked
}

func (c *PaymentCompletion) createBooking(ctx context.Context, req *models.BookingCreateRequest) (*models.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := c.newReference()
		if err != nil {
			lastErr = err
			continue
		}
		req.BookingReference = ref
		booking, err := c.bookings.Create(ctx, req)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, models.ErrDuplicateReference) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable booking reference after %d attempts: %w", maxReferenceAttempts, lastErr)
}

func (c *PaymentCompletion) createTicket(ctx context.Context, booking *models.Booking) (*models.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		req, err := models.NewTicketForBooking(booking)
		if err != nil {
			lastErr = err
			continue
		}
		ticket, _, err := c.tickets.CreateForBooking(ctx, req)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, models.ErrDuplicateReference) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable ticket number after %d attempts: %w", maxReferenceAttempts, lastErr)
}

// settleCart empties the user's cart after materialization. Rows that became
// bookings are consumed so their seats stay taken; a booked row that had already
// expired gets its seats re-claimed. Everything else is released.
func (c *PaymentCompletion) settleCart(ctx context.Context, userID string, booked []models.CartSnapshotItem) {
	log := c.logger.WithField("user_id", userID)

	ids := make([]string, 0, len(booked))
	for _, item := range booked {
		ids = append(ids, item.CartItemID)
	}

	consumed := map[string]bool{}
	if len(ids) > 0 {
		consumedIDs, err := c.carts.Consume(ctx, userID, ids)
		if err != nil {
			log.WithError(err).Error("Failed to consume booked cart items")
		}
		for _, id := range consumedIDs {
			consumed[id] = true
		}
	}

	for _, item := range booked {
		if consumed[item.CartItemID] {
			continue
		}
		seats := item.TicketQuantities.Total()
		if err := c.slots.Reclaim(ctx, item.TimeSlotID, seats); err != nil {
			entry := log.WithError(err).WithFields(logrus.Fields{
				"cart_item_id": item.CartItemID,
				"time_slot_id": item.TimeSlotID,
				"seats":        seats,
			})
			if errors.Is(err, models.ErrInsufficientSeats) {
				entry.Warn("Booked an expired hold on a full time slot, slot is oversold")
			} else {
				entry.Error("Failed to re-claim seats for expired hold")
			}
		}
	}

	if _, err := c.carts.Clear(ctx, userID); err != nil {
		log.WithError(err).Error("Failed to clear cart after checkout")
	}
}

func (c *PaymentCompletion) notify(ctx context.Context, booking *models.Booking, paymentID string) {
	if !c.settings.Current(ctx).NotificationsEnabled {
		return
	}

	title := string(booking.Target.Kind)
	timeSlot := ""
	if slot, err := c.slots.GetByID(ctx, booking.TimeSlotID); err == nil {
		title = slot.Title
		timeSlot = slot.Label()
	}

	c.dispatcher.Enqueue(ctx, models.BookingNotification{
		GuestEmail:       booking.GuestEmail,
		GuestName:        booking.GuestName,
		BookingReference: booking.BookingReference,
		EventTitle:       title,
		VisitDate:        booking.BookingDate,
		TimeSlot:         timeSlot,
		TotalAmount:      booking.TotalAmountInRupees(),
		TicketCount:      booking.TicketQuantities.Total(),
		PaymentID:        paymentID,
	})
}
