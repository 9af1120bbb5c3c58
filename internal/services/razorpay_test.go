package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/utils"
)

func razorpayConfig(baseURL string) config.RazorpayConfig {
	return config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec",
		BaseURL:       baseURL,
		Timeout:       5 * time.Second,
	}
}

func TestRazorpayService_CreateOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body razorpayOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(50000), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "rcpt_1", body.Receipt)

		_, _ = w.Write([]byte(`{"id":"order_Lx1","entity":"order","amount":50000,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer server.Close()

	gateway := NewRazorpayService(razorpayConfig(server.URL+"/v1/"), logger)
	order, err := gateway.CreateOrder(context.Background(), 50000, "INR", "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_Lx1", order.ID)
	assert.Equal(t, int64(50000), order.Amount)
	assert.Equal(t, "rzp_test_key", gateway.KeyID())
}

func TestRazorpayService_CreateOrder_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "api error",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount must be at least INR 1.00","field":"amount"}}`,
			check: func(t *testing.T, err error) {
				var apiErr *RazorpayError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
				assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
				assert.Equal(t, "amount", apiErr.Field)
			},
		},
		{
			name:   "unstructured error",
			status: http.StatusBadGateway,
			body:   `upstream unavailable`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "status 502")
			},
		},
		{
			name:   "order without id",
			status: http.StatusOK,
			body:   `{"entity":"order"}`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "without id")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewRazorpayService(razorpayConfig(server.URL), logger).CreateOrder(context.Background(), 50000, "INR", "rcpt_1")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRazorpayService_Signatures(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gateway := NewRazorpayService(razorpayConfig("http://unused"), logger)

	sig := utils.SignHMACSHA256("rzp_test_secret", utils.PaymentSignaturePayload("order_1", "pay_1"))
	assert.True(t, gateway.VerifyPaymentSignature("order_1", "pay_1", sig))
	assert.False(t, gateway.VerifyPaymentSignature("order_1", "pay_2", sig))

	body := []byte(`{"event":"payment.captured"}`)
	assert.True(t, gateway.VerifyWebhookSignature(body, utils.SignHMACSHA256("whsec", body)))

	cfg := razorpayConfig("http://unused")
	cfg.WebhookSecret = ""
	unsigned := NewRazorpayService(cfg, logger)
	assert.False(t, unsigned.VerifyWebhookSignature(body, utils.SignHMACSHA256("", body)), "no secret never verifies")
}

func TestNewPaymentGateway(t *testing.T) {
	logger, _ := test.NewNullLogger()

	assert.IsType(t, &RazorpayService{}, NewPaymentGateway(razorpayConfig("http://unused"), logger))
	assert.IsType(t, &SandboxGateway{}, NewPaymentGateway(config.RazorpayConfig{}, logger))
}

func TestSandboxGateway(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gateway := NewSandboxGateway(config.RazorpayConfig{KeySecret: "s", WebhookSecret: "w"}, logger)

	order, err := gateway.CreateOrder(context.Background(), 1200, "INR", "rcpt_1")
	require.NoError(t, err)
	assert.Regexp(t, `^order_sandbox_[0-9a-f]{14}$`, order.ID)
	assert.Equal(t, "created", order.Status)
	assert.Equal(t, "rzp_sandbox", gateway.KeyID())

	sig := utils.SignHMACSHA256("s", utils.PaymentSignaturePayload(order.ID, "pay_1"))
	assert.True(t, gateway.VerifyPaymentSignature(order.ID, "pay_1", sig))
	assert.False(t, gateway.VerifyWebhookSignature([]byte("{}"), sig))
}
