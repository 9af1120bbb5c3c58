package services

import (
	"context"
	"io"
	"time"

	"museum-ticketing-platform/internal/models"
)

// CartStore persists cart holds and the seat counters they reserve
type CartStore interface {
	CreateHold(ctx context.Context, req *models.CartItemCreateRequest) (*models.CartItem, error)
	GetByUser(ctx context.Context, userID string) ([]*models.CartItem, error)
	GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.CartItem, error)
	Remove(ctx context.Context, userID, itemID string) (bool, error)
	Clear(ctx context.Context, userID string) ([]string, error)
	RemoveExpired(ctx context.Context, userID string, now time.Time) ([]string, error)
	RemoveAllExpired(ctx context.Context, now time.Time) ([]string, error)
	Consume(ctx context.Context, userID string, ids []string) ([]string, error)
}

// TimeSlotStore reads time slots and re-claims seats for late bookings
type TimeSlotStore interface {
	GetByID(ctx context.Context, id string) (*models.TimeSlot, error)
	Reclaim(ctx context.Context, id string, seats int) error
}

// PricingStore reads the server-side ticket price table
type PricingStore interface {
	GetPrices(ctx context.Context, target models.Target) (map[string]int64, error)
}

// PaymentOrderStore persists gateway orders and their status transitions
type PaymentOrderStore interface {
	Create(ctx context.Context, req *models.PaymentOrderCreateRequest) (*models.PaymentOrder, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
	GetByGatewayOrderIDForUser(ctx context.Context, gatewayOrderID, userID string) (*models.PaymentOrder, error)
	MarkPaid(ctx context.Context, id, paymentID string, signature *string) (*models.PaymentOrder, error)
	TransitionStatus(ctx context.Context, gatewayOrderID string, from, to models.PaymentOrderStatus) (bool, error)
	FlagForReconciliation(ctx context.Context, id string, failures models.ItemErrors) error
	ListNeedingReconciliation(ctx context.Context, limit int) ([]*models.PaymentOrder, error)
}

// BookingStore persists bookings
type BookingStore interface {
	Create(ctx context.Context, req *models.BookingCreateRequest) (*models.Booking, error)
	GetByReference(ctx context.Context, reference string) (*models.BookingWithTicket, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.BookingWithTicket, error)
	ListByPaymentOrder(ctx context.Context, paymentOrderID string) ([]*models.Booking, error)
	UpdatePaymentStatusForOrder(ctx context.Context, paymentOrderID string, from []models.BookingPaymentStatus, to models.BookingPaymentStatus) (int64, error)
}

// TicketStore persists tickets, at most one per booking
type TicketStore interface {
	CreateForBooking(ctx context.Context, ticket *models.Ticket) (*models.Ticket, bool, error)
	GetByBookingID(ctx context.Context, bookingID string) (*models.Ticket, error)
}

// WebhookEventStore is the append-only log of gateway callbacks
type WebhookEventStore interface {
	Create(ctx context.Context, req *models.WebhookEventCreateRequest) (*models.WebhookEvent, error)
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, processed bool, processingErr *string) error
	ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error)
}

// SettingsStore persists operator settings
type SettingsStore interface {
	GetSettings(ctx context.Context) (*models.SystemSettings, error)
	UpdateSettings(ctx context.Context, req *models.SettingsUpdateRequest) (*models.SystemSettings, error)
}

// AuditLogStore persists audit rows
type AuditLogStore interface {
	Create(ctx context.Context, req *models.AuditLogCreateRequest) (*models.AuditLog, error)
	GetAll(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}

// SettingsProvider hands out the settings in force right now.
// It never fails; defaults are returned when the store is unreachable.
type SettingsProvider interface {
	Current(ctx context.Context) *models.SystemSettings
}

// PaymentGateway is the subset of the payment provider the booking flow needs
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*GatewayOrder, error)
	KeyID() string
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Dispatcher hands a confirmation email off to a background transport.
// Enqueue never blocks the caller and never fails the caller's operation.
type Dispatcher interface {
	Enqueue(ctx context.Context, n models.BookingNotification)
}

// NotificationHandler delivers one notification; used by queue consumers
type NotificationHandler interface {
	Send(ctx context.Context, n models.BookingNotification) error
}

// Mailer sends one transactional email
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// StorageService defines the interface for ticket asset storage
type StorageService interface {
	// Upload stores the object and returns its public URL
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error)

	// GetURL returns the public URL for a key
	GetURL(key string) string

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
