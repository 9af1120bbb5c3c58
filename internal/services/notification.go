package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// ChannelDispatcher delivers notifications from an in-process buffered queue
// with a fixed pool of workers
type ChannelDispatcher struct {
	handler NotificationHandler
	queue   chan models.BookingNotification
	workers int
	timeout time.Duration
	metrics *Metrics
	logger  *logrus.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewChannelDispatcher creates a dispatcher; call Start to run the workers
func NewChannelDispatcher(handler NotificationHandler, workers, bufferSize int, metrics *Metrics, logger *logrus.Logger) *ChannelDispatcher {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &ChannelDispatcher{
		handler: handler,
		queue:   make(chan models.BookingNotification, bufferSize),
		workers: workers,
		timeout: 30 * time.Second,
		metrics: metrics,
		logger:  logger,
	}
}

// Start launches the workers
func (d *ChannelDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	d.logger.WithField("workers", d.workers).Info("Notification dispatcher started")
}

// Enqueue queues n without blocking. When the queue is full or the
// dispatcher is stopped the notification is dropped with a warning.
func (d *ChannelDispatcher) Enqueue(ctx context.Context, n models.BookingNotification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.logger.WithField("booking_reference", n.BookingReference)
	if d.closed {
		log.Warn("Notification dropped, dispatcher stopped")
		return
	}

	select {
	case d.queue <- n:
		d.metrics.NotificationQueued()
	default:
		d.metrics.NotificationFailed()
		log.Warn("Notification dropped, queue full")
	}
}

// Stop closes the queue and waits for queued notifications to drain,
// or for ctx to end
func (d *ChannelDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher did not drain: %w", ctx.Err())
	}
}

func (d *ChannelDispatcher) work(id int) {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.handler.Send(ctx, n); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"worker":            id,
				"booking_reference": n.BookingReference,
			}).Error("Failed to send booking confirmation")
		}
		cancel()
	}
}

// NotificationSender renders and sends booking confirmation emails
type NotificationSender struct {
	mailer  Mailer
	assets  *TicketAssets
	metrics *Metrics
	logger  *logrus.Logger
}

// NewNotificationSender creates a new sender
func NewNotificationSender(mailer Mailer, assets *TicketAssets, metrics *Metrics, logger *logrus.Logger) *NotificationSender {
	return &NotificationSender{
		mailer:  mailer,
		assets:  assets,
		metrics: metrics,
		logger:  logger,
	}
}

// confirmationData is the template view of a notification
type confirmationData struct {
	models.BookingNotification
	Amount    string
	QRCodeURL string
}

// Send renders the confirmation and hands it to the mailer. The QR code is
// attached; a stored copy is linked when storage is available.
func (s *NotificationSender) Send(ctx context.Context, n models.BookingNotification) error {
	if n.GuestEmail == "" {
		return fmt.Errorf("notification for %s has no recipient", n.BookingReference)
	}

	data := confirmationData{
		BookingNotification: n,
		Amount:              formatRupees(n.TotalAmount),
	}

	var attachments []EmailAttachment
	qr, url, err := s.assets.QRCode(ctx, n.BookingReference)
	if err != nil {
		s.logger.WithError(err).WithField("booking_reference", n.BookingReference).Warn("Sending confirmation without QR code")
	} else {
		data.QRCodeURL = url
		attachments = append(attachments, EmailAttachment{
			Filename:    n.BookingReference + ".png",
			ContentType: qrCodeContentType,
			Content:     qr,
		})
	}

	html, text, err := renderConfirmation(data)
	if err != nil {
		s.metrics.NotificationFailed()
		return err
	}

	msg := &EmailMessage{
		To:          n.GuestEmail,
		Subject:     fmt.Sprintf("Booking confirmed: %s (%s)", n.EventTitle, n.BookingReference),
		HTML:        html,
		Text:        text,
		Tags:        map[string]string{"category": "booking_confirmation"},
		Attachments: attachments,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.NotificationFailed()
		return fmt.Errorf("failed to send confirmation for %s: %w", n.BookingReference, err)
	}

	s.metrics.NotificationSent()
	s.logger.WithFields(logrus.Fields{
		"booking_reference": n.BookingReference,
		"to":                n.GuestEmail,
	}).Info("Booking confirmation sent")
	return nil
}

func formatRupees(amount float64) string {
	if amount == 0 {
		return "Free"
	}
	return fmt.Sprintf("₹%.2f", amount)
}

func renderConfirmation(data confirmationData) (string, string, error) {
	var htmlBuf bytes.Buffer
	if err := confirmationHTML.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render HTML template: %w", err)
	}

	var textBuf bytes.Buffer
	if err := confirmationText.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render text template: %w", err)
	}

	return htmlBuf.String(), textBuf.String(), nil
}

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation_html").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Booking Confirmation</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1F2937; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .highlight { background-color: #F3F4F6; padding: 15px; border-left: 4px solid #B45309; margin: 20px 0; }
        .reference { font-family: monospace; font-size: 18px; letter-spacing: 1px; }
        .footer { text-align: center; padding: 20px; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your visit is booked</h1>
        </div>
        <div class="content">
            <p>Dear {{.GuestName}},</p>
            <p>Thank you for your booking. Please show the QR code attached to this email at the entrance.</p>

            <div class="highlight">
                <h3>{{.EventTitle}}</h3>
                <p><strong>Date:</strong> {{.VisitDate}}</p>
                {{if .TimeSlot}}<p><strong>Time:</strong> {{.TimeSlot}}</p>{{end}}
                <p><strong>Tickets:</strong> {{.TicketCount}}</p>
                <p><strong>Total:</strong> {{.Amount}}</p>
                <p><strong>Booking reference:</strong> <span class="reference">{{.BookingReference}}</span></p>
                {{if .PaymentID}}<p><strong>Payment ID:</strong> {{.PaymentID}}</p>{{end}}
            </div>

            {{if .QRCodeURL}}<p><img src="{{.QRCodeURL}}" alt="Ticket QR code" width="200" height="200"></p>{{end}}

            <p>Please arrive 10 minutes before your time slot.</p>
        </div>
        <div class="footer">
            <p>Museum Tickets</p>
        </div>
    </div>
</body>
</html>`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation_text").Parse(`Your visit is booked

Dear {{.GuestName}},

Thank you for your booking. Please show the attached QR code at the entrance.

{{.EventTitle}}
Date: {{.VisitDate}}
{{if .TimeSlot}}Time: {{.TimeSlot}}
{{end}}Tickets: {{.TicketCount}}
Total: {{.Amount}}
Booking reference: {{.BookingReference}}
{{if .PaymentID}}Payment ID: {{.PaymentID}}
{{end}}
Please arrive 10 minutes before your time slot.

Museum Tickets
`))
