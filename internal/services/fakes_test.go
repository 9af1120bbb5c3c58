package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/utils"
)

const (
	testKeySecret     = "key_secret_for_tests"
	testWebhookSecret = "webhook_secret_for_tests"

	exhibitionID = "11111111-1111-4111-8111-111111111111"
	showID       = "22222222-2222-4222-8222-222222222222"
)

// fakeDB is an in-memory stand-in for the Postgres schema. All store fakes
// share one instance so cross-table effects (seat counts, cart rows) are visible.
type fakeDB struct {
	mu       sync.Mutex
	seq      int
	slots    map[string]*models.TimeSlot
	prices   map[string]map[string]int64
	cart     map[string]*models.CartItem
	orders   map[string]*models.PaymentOrder
	bookings []*models.Booking
	tickets  map[string]*models.Ticket
	events   []*models.WebhookEvent
	audits   []*models.AuditLogCreateRequest

	// failBookingsForSlot makes booking inserts for a slot fail
	failBookingsForSlot map[string]error
	failTickets         error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		slots:               map[string]*models.TimeSlot{},
		prices:              map[string]map[string]int64{},
		cart:                map[string]*models.CartItem{},
		orders:              map[string]*models.PaymentOrder{},
		tickets:             map[string]*models.Ticket{},
		failBookingsForSlot: map[string]error{},
	}
}

func (db *fakeDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *fakeDB) addSlot(id string, target models.Target, date string, capacity int) *models.TimeSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	slot := &models.TimeSlot{
		ID:             id,
		Target:         target,
		Title:          "Slot " + id,
		SlotDate:       date,
		StartTime:      "10:00:00",
		EndTime:        "11:00:00",
		Capacity:       capacity,
		AvailableSeats: capacity,
	}
	db.slots[id] = slot
	return slot
}

func (db *fakeDB) deleteSlot(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.slots, id)
}

func (db *fakeDB) setPrices(target models.Target, prices map[string]int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.prices[target.ID] = prices
}

func (db *fakeDB) available(slotID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.slots[slotID].AvailableSeats
}

func (db *fakeDB) cartSize(userID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, item := range db.cart {
		if item.UserID == userID {
			n++
		}
	}
	return n
}

func (db *fakeDB) bookingCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.bookings)
}

func (db *fakeDB) ticketCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.tickets)
}

func (db *fakeDB) order(gatewayOrderID string) *models.PaymentOrder {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orders {
		if o.GatewayOrderID == gatewayOrderID {
			cp := *o
			return &cp
		}
	}
	return nil
}

func (db *fakeDB) setOrderStatus(gatewayOrderID string, status models.PaymentOrderStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orders {
		if o.GatewayOrderID == gatewayOrderID {
			o.Status = status
		}
	}
}

func (db *fakeDB) release(item *models.CartItem) {
	if slot, ok := db.slots[item.TimeSlotID]; ok {
		slot.AvailableSeats += item.TicketQuantities.Total()
		if slot.AvailableSeats > slot.Capacity {
			slot.AvailableSeats = slot.Capacity
		}
	}
}

type fakeCartStore struct{ db *fakeDB }

func (s fakeCartStore) CreateHold(ctx context.Context, req *models.CartItemCreateRequest) (*models.CartItem, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	slot, ok := db.slots[req.TimeSlotID]
	if !ok {
		return nil, models.ErrTimeSlotNotFound
	}
	seats := req.TicketQuantities.Total()
	if slot.AvailableSeats < seats {
		return nil, fmt.Errorf("%w (requested: %d, available: %d)", models.ErrInsufficientSeats, seats, slot.AvailableSeats)
	}
	slot.AvailableSeats -= seats

	item := &models.CartItem{
		ID:               db.nextID("cart"),
		UserID:           req.UserID,
		TimeSlotID:       req.TimeSlotID,
		Target:           req.Target,
		BookingDate:      req.BookingDate,
		TicketQuantities: req.TicketQuantities,
		SubtotalPaise:    req.SubtotalPaise,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        time.Unix(int64(db.seq), 0),
	}
	db.cart[item.ID] = item
	cp := *item
	return &cp, nil
}

func (s fakeCartStore) list(match func(*models.CartItem) bool) []*models.CartItem {
	var out []*models.CartItem
	for _, item := range s.db.cart {
		if match(item) {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s fakeCartStore) GetByUser(ctx context.Context, userID string) ([]*models.CartItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.list(func(i *models.CartItem) bool { return i.UserID == userID }), nil
}

func (s fakeCartStore) GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.CartItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return s.list(func(i *models.CartItem) bool { return i.UserID == userID && want[i.ID] }), nil
}

func (s fakeCartStore) removeWhere(match func(*models.CartItem) bool, release bool) []string {
	var ids []string
	for _, item := range s.list(match) {
		if release {
			s.db.release(item)
		}
		delete(s.db.cart, item.ID)
		ids = append(ids, item.ID)
	}
	return ids
}

func (s fakeCartStore) Remove(ctx context.Context, userID, itemID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := s.removeWhere(func(i *models.CartItem) bool { return i.UserID == userID && i.ID == itemID }, true)
	return len(ids) > 0, nil
}

func (s fakeCartStore) Clear(ctx context.Context, userID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.removeWhere(func(i *models.CartItem) bool { return i.UserID == userID }, true), nil
}

func (s fakeCartStore) RemoveExpired(ctx context.Context, userID string, now time.Time) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.removeWhere(func(i *models.CartItem) bool { return i.UserID == userID && i.IsExpired(now) }, true), nil
}

func (s fakeCartStore) RemoveAllExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.removeWhere(func(i *models.CartItem) bool { return i.IsExpired(now) }, true), nil
}

func (s fakeCartStore) Consume(ctx context.Context, userID string, ids []string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return s.removeWhere(func(i *models.CartItem) bool { return i.UserID == userID && want[i.ID] }, false), nil
}

type fakeSlotStore struct{ db *fakeDB }

func (s fakeSlotStore) GetByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	slot, ok := s.db.slots[id]
	if !ok {
		return nil, models.ErrTimeSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (s fakeSlotStore) Reclaim(ctx context.Context, id string, seats int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	slot, ok := s.db.slots[id]
	if !ok || slot.AvailableSeats < seats {
		return models.ErrInsufficientSeats
	}
	slot.AvailableSeats -= seats
	return nil
}

type fakePricingStore struct{ db *fakeDB }

func (s fakePricingStore) GetPrices(ctx context.Context, target models.Target) (map[string]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := map[string]int64{}
	for k, v := range s.db.prices[target.ID] {
		out[k] = v
	}
	return out, nil
}

type fakeOrderStore struct{ db *fakeDB }

func (s fakeOrderStore) Create(ctx context.Context, req *models.PaymentOrderCreateRequest) (*models.PaymentOrder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	order := &models.PaymentOrder{
		ID:             s.db.nextID("order"),
		GatewayOrderID: req.GatewayOrderID,
		UserID:         req.UserID,
		AmountPaise:    req.AmountPaise,
		Currency:       req.Currency,
		Status:         models.PaymentOrderCreated,
		CartSnapshot:   req.CartSnapshot,
		Contact:        req.Contact,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.db.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (s fakeOrderStore) find(match func(*models.PaymentOrder) bool) (*models.PaymentOrder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.orders {
		if match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrPaymentOrderNotFound
}

func (s fakeOrderStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	return s.find(func(o *models.PaymentOrder) bool { return o.GatewayOrderID == gatewayOrderID })
}

func (s fakeOrderStore) GetByGatewayOrderIDForUser(ctx context.Context, gatewayOrderID, userID string) (*models.PaymentOrder, error) {
	return s.find(func(o *models.PaymentOrder) bool { return o.GatewayOrderID == gatewayOrderID && o.UserID == userID })
}

func (s fakeOrderStore) MarkPaid(ctx context.Context, id, paymentID string, signature *string) (*models.PaymentOrder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	order, ok := s.db.orders[id]
	switch {
	case !ok:
		return nil, models.ErrPaymentOrderNotFound
	case order.Status == models.PaymentOrderPaid:
		return nil, models.ErrOrderAlreadyPaid
	case order.Status != models.PaymentOrderCreated:
		return nil, models.ErrOrderClosed
	}
	now := time.Now()
	order.Status = models.PaymentOrderPaid
	order.PaymentID = &paymentID
	if signature != nil {
		order.PaymentSignature = signature
	}
	order.PaidAt = &now
	cp := *order
	return &cp, nil
}

func (s fakeOrderStore) TransitionStatus(ctx context.Context, gatewayOrderID string, from, to models.PaymentOrderStatus) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.orders {
		if o.GatewayOrderID == gatewayOrderID && o.Status == from {
			o.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s fakeOrderStore) FlagForReconciliation(ctx context.Context, id string, failures models.ItemErrors) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if o, ok := s.db.orders[id]; ok {
		o.ReconciliationRequired = true
		o.FailureDetails = failures
	}
	return nil
}

func (s fakeOrderStore) ListNeedingReconciliation(ctx context.Context, limit int) ([]*models.PaymentOrder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.PaymentOrder
	for _, o := range s.db.orders {
		if o.ReconciliationRequired {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeBookingStore struct{ db *fakeDB }

func (s fakeBookingStore) Create(ctx context.Context, req *models.BookingCreateRequest) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err, ok := s.db.failBookingsForSlot[req.TimeSlotID]; ok {
		return nil, err
	}
	for _, b := range s.db.bookings {
		if b.BookingReference == req.BookingReference {
			return nil, models.ErrDuplicateReference
		}
	}

	var phone *string
	if req.Contact.Phone != "" {
		p := req.Contact.Phone
		phone = &p
	}
	booking := &models.Booking{
		ID:               s.db.nextID("booking"),
		BookingReference: req.BookingReference,
		UserID:           req.UserID,
		GuestName:        req.Contact.Name,
		GuestEmail:       req.Contact.Email,
		GuestPhone:       phone,
		TimeSlotID:       req.TimeSlotID,
		Target:           req.Target,
		BookingDate:      req.BookingDate,
		TicketQuantities: req.TicketQuantities,
		TotalAmountPaise: req.TotalAmountPaise,
		Status:           req.Status,
		PaymentStatus:    req.PaymentStatus,
		PaymentOrderID:   req.PaymentOrderID,
		PaymentID:        req.PaymentID,
		CreatedAt:        time.Now(),
	}
	s.db.bookings = append(s.db.bookings, booking)
	cp := *booking
	return &cp, nil
}

func (s fakeBookingStore) withTicket(b *models.Booking) *models.BookingWithTicket {
	cp := *b
	return &models.BookingWithTicket{Booking: &cp, Ticket: s.db.tickets[b.ID]}
}

func (s fakeBookingStore) GetByReference(ctx context.Context, reference string) (*models.BookingWithTicket, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, b := range s.db.bookings {
		if b.BookingReference == reference {
			return s.withTicket(b), nil
		}
	}
	return nil, models.ErrBookingNotFound
}

func (s fakeBookingStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.BookingWithTicket, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.BookingWithTicket
	for _, b := range s.db.bookings {
		if b.UserID != nil && *b.UserID == userID {
			out = append(out, s.withTicket(b))
		}
	}
	return out, nil
}

func (s fakeBookingStore) ListByPaymentOrder(ctx context.Context, paymentOrderID string) ([]*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.db.bookings {
		if b.PaymentOrderID != nil && *b.PaymentOrderID == paymentOrderID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s fakeBookingStore) UpdatePaymentStatusForOrder(ctx context.Context, paymentOrderID string, from []models.BookingPaymentStatus, to models.BookingPaymentStatus) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, b := range s.db.bookings {
		if b.PaymentOrderID == nil || *b.PaymentOrderID != paymentOrderID {
			continue
		}
		for _, f := range from {
			if b.PaymentStatus == f {
				b.PaymentStatus = to
				n++
				break
			}
		}
	}
	return n, nil
}

type fakeTicketStore struct{ db *fakeDB }

func (s fakeTicketStore) CreateForBooking(ctx context.Context, ticket *models.Ticket) (*models.Ticket, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failTickets != nil {
		return nil, false, s.db.failTickets
	}
	if existing, ok := s.db.tickets[ticket.BookingID]; ok {
		return existing, false, nil
	}
	out := *ticket
	out.ID = s.db.nextID("ticket")
	out.CreatedAt = time.Now()
	s.db.tickets[ticket.BookingID] = &out
	return &out, true, nil
}

func (s fakeTicketStore) GetByBookingID(ctx context.Context, bookingID string) (*models.Ticket, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if t, ok := s.db.tickets[bookingID]; ok {
		return t, nil
	}
	return nil, models.ErrTicketNotFound
}

type fakeEventStore struct{ db *fakeDB }

func (s fakeEventStore) Create(ctx context.Context, req *models.WebhookEventCreateRequest) (*models.WebhookEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if req.EventID != nil {
		for _, e := range s.db.events {
			if e.EventID != nil && *e.EventID == *req.EventID {
				return nil, models.ErrDuplicateWebhook
			}
		}
	}
	event := &models.WebhookEvent{
		ID:               s.db.nextID("event"),
		EventID:          req.EventID,
		EventType:        req.EventType,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		Payload:          req.Payload,
		ReceivedAt:       time.Now(),
	}
	s.db.events = append(s.db.events, event)
	cp := *event
	return &cp, nil
}

func (s fakeEventStore) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.events {
		if e.EventID != nil && *e.EventID == eventID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, models.ErrWebhookEventNotFound
}

func (s fakeEventStore) MarkProcessed(ctx context.Context, id string, processed bool, processingErr *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.events {
		if e.ID == id {
			now := time.Now()
			e.Processed = processed
			e.Error = processingErr
			e.ProcessedAt = &now
		}
	}
	return nil
}

func (s fakeEventStore) ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.WebhookEvent
	for i := len(s.db.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.db.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

type fakeAuditStore struct{ db *fakeDB }

func (s fakeAuditStore) Create(ctx context.Context, req *models.AuditLogCreateRequest) (*models.AuditLog, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audits = append(s.db.audits, req)
	return &models.AuditLog{ID: s.db.nextID("audit"), Action: req.Action, TargetID: req.TargetID}, nil
}

func (s fakeAuditStore) GetAll(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.AuditLog
	for _, a := range s.db.audits {
		if action == "" || a.Action == action {
			out = append(out, &models.AuditLog{Action: a.Action, TargetID: a.TargetID})
		}
	}
	return out, nil
}

func (db *fakeDB) auditActions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for _, a := range db.audits {
		out = append(out, a.Action)
	}
	return out
}

type staticSettings struct{ settings *models.SystemSettings }

func (s *staticSettings) Current(ctx context.Context) *models.SystemSettings {
	cp := *s.settings
	return &cp
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.BookingNotification
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, n models.BookingNotification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *recordingDispatcher) notifications() []models.BookingNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.BookingNotification(nil), d.sent...)
}

// MockPaymentGateway is a testify mock of the gateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*GatewayOrder, error) {
	args := m.Called(ctx, amountPaise, currency, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayOrder), args.Error(1)
}

func (m *MockPaymentGateway) KeyID() string {
	return m.Called().String(0)
}

func (m *MockPaymentGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return m.Called(orderID, paymentID, signature).Bool(0)
}

func (m *MockPaymentGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return m.Called(body, signature).Bool(0)
}

// MockMailer is a testify mock of the mail transport
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg *EmailMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// memoryStorage is a StorageService backed by a map
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (s *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	s.uploads++
	return s.GetURL(key), nil
}

func (s *memoryStorage) GetURL(key string) string {
	return "https://assets.test/" + key
}

func (s *memoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// testEnv wires every booking flow service over one fakeDB
type testEnv struct {
	db         *fakeDB
	settings   *staticSettings
	dispatcher *recordingDispatcher
	gateway    PaymentGateway
	metrics    *Metrics
	logger     *logrus.Logger
	hook       *test.Hook
	now        time.Time

	audit      *AuditService
	cart       *CartService
	completion *PaymentCompletion
	checkout   *CheckoutService
	payments   *PaymentService
	webhooks   *WebhookService
	bookings   *BookingService
	admin      *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	db := newFakeDB()
	env := &testEnv{
		db:         db,
		settings:   &staticSettings{settings: models.DefaultSettings()},
		dispatcher: &recordingDispatcher{},
		gateway: NewSandboxGateway(config.RazorpayConfig{
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
		}, logger),
		metrics: NewMetrics(),
		logger:  logger,
		hook:    hook,
		now:     time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	env.wire()
	return env
}

func (e *testEnv) wire() {
	db := e.db
	e.audit = NewAuditService(fakeAuditStore{db}, e.logger)
	e.cart = NewCartService(fakeCartStore{db}, fakeSlotStore{db}, fakePricingStore{db}, e.settings, e.metrics, e.logger)
	e.cart.now = func() time.Time { return e.now }
	e.completion = NewPaymentCompletion(fakeOrderStore{db}, fakeBookingStore{db}, fakeTicketStore{db}, fakeSlotStore{db},
		fakeCartStore{db}, e.settings, e.dispatcher, e.audit, e.metrics, e.logger)
	e.checkout = NewCheckoutService(fakeCartStore{db}, fakeOrderStore{db}, e.gateway, e.completion, e.metrics, e.logger)
	e.checkout.now = func() time.Time { return e.now }
	e.payments = NewPaymentService(fakeOrderStore{db}, e.gateway, e.completion, e.audit, e.metrics, e.logger)
	e.webhooks = NewWebhookService(fakeEventStore{db}, fakeOrderStore{db}, fakeBookingStore{db}, e.gateway, e.completion, e.audit, e.metrics, e.logger)
	e.bookings = NewBookingService(fakeBookingStore{db}, e.logger)
	e.admin = NewAdminService(fakeOrderStore{db}, e.webhooks, e.audit, e.logger)
}

func visitor(id string) *models.Principal {
	return &models.Principal{UserID: id, Email: id + "@example.com", Role: models.UserRoleVisitor}
}

func testContact() models.ContactDetails {
	return models.ContactDetails{Name: "Asha Rao", Email: "asha@example.com", Phone: "+91 98765 43210"}
}

// hold places a cart hold through the service and fails the test on error
func (e *testEnv) hold(t *testing.T, principal *models.Principal, slotID string, target models.Target, quantities models.TicketQuantities) *models.CartItem {
	t.Helper()
	item, err := e.cart.AddItem(context.Background(), principal, AddCartItemInput{
		TimeSlotID:       slotID,
		Target:           target,
		TicketQuantities: quantities,
	})
	require.NoError(t, err)
	return item
}

// checkoutPaid runs checkout for the given items and returns the gateway order id
func (e *testEnv) checkoutPaid(t *testing.T, principal *models.Principal, items ...*models.CartItem) string {
	t.Helper()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	result, err := e.checkout.Checkout(context.Background(), principal, CheckoutInput{
		CartItemIDs:   ids,
		UserDetails:   testContact(),
		TermsAccepted: true,
	})
	require.NoError(t, err)
	require.False(t, result.IsFree)
	return result.OrderID
}

func signPayment(orderID, paymentID string) string {
	return utils.SignHMACSHA256(testKeySecret, utils.PaymentSignaturePayload(orderID, paymentID))
}

func signWebhook(body []byte) string {
	return utils.SignHMACSHA256(testWebhookSecret, body)
}

func webhookBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":50000,"currency":"INR","status":"captured"}}}}`,
		event, paymentID, orderID))
}
