package services

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Metrics holds process-wide booking flow counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cartHolds            atomic.Int64
	capacityRejections   atomic.Int64
	checkouts            atomic.Int64
	freeCheckouts        atomic.Int64
	paymentsVerified     atomic.Int64
	signatureFailures    atomic.Int64
	bookingsCreated      atomic.Int64
	itemErrors           atomic.Int64
	unreconciledCaptures atomic.Int64
	webhooksReceived     atomic.Int64
	notificationsQueued  atomic.Int64
	notificationsSent    atomic.Int64
	notificationsFailed  atomic.Int64
}

// NewMetrics creates an empty counter set
func NewMetrics() *Metrics {
	return &Metrics{}
}

// CartHold counts a successful cart hold
func (m *Metrics) CartHold() {
	if m != nil {
		m.cartHolds.Add(1)
	}
}

// CapacityRejected counts a hold refused for lack of seats
func (m *Metrics) CapacityRejected() {
	if m != nil {
		m.capacityRejections.Add(1)
	}
}

// Checkout counts a checkout, free or paid
func (m *Metrics) Checkout(free bool) {
	if m == nil {
		return
	}
	if free {
		m.freeCheckouts.Add(1)
		return
	}
	m.checkouts.Add(1)
}

// PaymentVerified counts a verification that created bookings
func (m *Metrics) PaymentVerified() {
	if m != nil {
		m.paymentsVerified.Add(1)
	}
}

// SignatureFailure counts a payment or webhook HMAC mismatch
func (m *Metrics) SignatureFailure() {
	if m != nil {
		m.signatureFailures.Add(1)
	}
}

// BookingsCreated adds n materialized bookings
func (m *Metrics) BookingsCreated(n int) {
	if m != nil {
		m.bookingsCreated.Add(int64(n))
	}
}

// ItemErrors adds n per-item materialization failures
func (m *Metrics) ItemErrors(n int) {
	if m != nil {
		m.itemErrors.Add(int64(n))
	}
}

// UnreconciledCapture counts a captured payment that booked nothing
func (m *Metrics) UnreconciledCapture() {
	if m != nil {
		m.unreconciledCaptures.Add(1)
	}
}

// WebhookReceived counts an incoming webhook delivery
func (m *Metrics) WebhookReceived() {
	if m != nil {
		m.webhooksReceived.Add(1)
	}
}

// NotificationQueued counts a notification handed to its transport
func (m *Metrics) NotificationQueued() {
	if m != nil {
		m.notificationsQueued.Add(1)
	}
}

// NotificationSent counts a delivered confirmation email
func (m *Metrics) NotificationSent() {
	if m != nil {
		m.notificationsSent.Add(1)
	}
}

// NotificationFailed counts a dropped or undeliverable notification
func (m *Metrics) NotificationFailed() {
	if m != nil {
		m.notificationsFailed.Add(1)
	}
}

// Snapshot returns the current counter values keyed by name
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"cart_holds":            m.cartHolds.Load(),
		"capacity_rejections":   m.capacityRejections.Load(),
		"checkouts":             m.checkouts.Load(),
		"free_checkouts":        m.freeCheckouts.Load(),
		"payments_verified":     m.paymentsVerified.Load(),
		"signature_failures":    m.signatureFailures.Load(),
		"bookings_created":      m.bookingsCreated.Load(),
		"item_errors":           m.itemErrors.Load(),
		"unreconciled_captures": m.unreconciledCaptures.Load(),
		"webhooks_received":     m.webhooksReceived.Load(),
		"notifications_queued":  m.notificationsQueued.Load(),
		"notifications_sent":    m.notificationsSent.Load(),
		"notifications_failed":  m.notificationsFailed.Load(),
	}
}

// MetricsReporter logs a metrics snapshot on a fixed interval.
// It does nothing until Start is called.
type MetricsReporter struct {
	metrics   *Metrics
	scheduler gocron.Scheduler
	logger    *logrus.Logger
}

// NewMetricsReporter schedules the reporting job without starting it
func NewMetricsReporter(metrics *Metrics, interval time.Duration, logger *logrus.Logger) (*MetricsReporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("metrics interval must be positive, got %s", interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	r := &MetricsReporter{metrics: metrics, scheduler: s, logger: logger}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.Report),
		gocron.WithName("metrics-report"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule metrics job: %w", err)
	}

	return r, nil
}

// Start begins reporting
func (r *MetricsReporter) Start() {
	r.scheduler.Start()
	r.logger.Info("Metrics reporter started")
}

// Stop halts the scheduler and waits for a running report to finish
func (r *MetricsReporter) Stop() error {
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop metrics reporter: %w", err)
	}
	return nil
}

// Report logs the current counters once
func (r *MetricsReporter) Report() {
	fields := logrus.Fields{}
	for k, v := range r.metrics.Snapshot() {
		fields[k] = v
	}
	r.logger.WithFields(fields).Info("Booking flow metrics")
}
