package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/services"
)

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) AddItem(ctx context.Context, principal *models.Principal, input services.AddCartItemInput) (*models.CartItem, error) {
	args := m.Called(ctx, principal, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartItem), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, principal *models.Principal, itemID string) (bool, error) {
	args := m.Called(ctx, principal, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCartService) ClearCart(ctx context.Context, principal *models.Principal) ([]string, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCartService) CheckExpiredItems(ctx context.Context, principal *models.Principal) ([]string, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCartService) ListItems(ctx context.Context, principal *models.Principal) ([]*models.CartItem, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CartItem), args.Error(1)
}

func (m *MockCartService) MergeGuestCart(ctx context.Context, principal *models.Principal, items []models.GuestCartItem) (*services.MergeResult, error) {
	args := m.Called(ctx, principal, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MergeResult), args.Error(1)
}

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Checkout(ctx context.Context, principal *models.Principal, input services.CheckoutInput) (*services.CheckoutResult, error) {
	args := m.Called(ctx, principal, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CheckoutResult), args.Error(1)
}

type MockPaymentVerifier struct {
	mock.Mock
}

func (m *MockPaymentVerifier) Verify(ctx context.Context, principal *models.Principal, input services.VerifyPaymentInput) (*services.VerifyPaymentResult, error) {
	args := m.Called(ctx, principal, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VerifyPaymentResult), args.Error(1)
}

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) Handle(ctx context.Context, req services.WebhookRequest) (*services.WebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WebhookResult), args.Error(1)
}

type MockBookingReader struct {
	mock.Mock
}

func (m *MockBookingReader) ListForUser(ctx context.Context, principal *models.Principal, page, limit int) ([]*models.BookingWithTicket, error) {
	args := m.Called(ctx, principal, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingWithTicket), args.Error(1)
}

func (m *MockBookingReader) GetByReference(ctx context.Context, principal *models.Principal, reference string) (*models.BookingWithTicket, error) {
	args := m.Called(ctx, principal, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingWithTicket), args.Error(1)
}

type MockAdminReader struct {
	mock.Mock
}

func (m *MockAdminReader) ReconciliationQueue(ctx context.Context, limit int) ([]*models.PaymentOrder, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentOrder), args.Error(1)
}

func (m *MockAdminReader) WebhookEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WebhookEvent), args.Error(1)
}

func (m *MockAdminReader) AuditLogs(ctx context.Context, action string, page, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, action, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type MockSettingsManager struct {
	mock.Mock
}

func (m *MockSettingsManager) GetSettings(ctx context.Context) (*models.SystemSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SystemSettings), args.Error(1)
}

func (m *MockSettingsManager) UpdateSettings(ctx context.Context, principal *models.Principal, req *models.SettingsUpdateRequest, meta services.RequestMeta) (*models.SystemSettings, error) {
	args := m.Called(ctx, principal, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SystemSettings), args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

var (
	visitor = &models.Principal{UserID: "user-1", Email: "asha@example.com", Role: models.UserRoleVisitor}
	admin   = &models.Principal{UserID: "admin-1", Email: "ops@museum.example", Role: models.UserRoleAdmin}
)

// newRequest builds a request with an optional JSON body and principal
func newRequest(t *testing.T, method, target string, body interface{}, principal *models.Principal) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
	}
	return req
}

// withURLParam attaches a chi route parameter
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}
