package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/utils"
)

// GatewayOrder is the order the gateway created for a checkout
type GatewayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// RazorpayService talks to the Razorpay orders API
type RazorpayService struct {
	config config.RazorpayConfig
	client *http.Client
	logger *logrus.Logger
}

// NewRazorpayService creates a new Razorpay client
func NewRazorpayService(cfg config.RazorpayConfig, logger *logrus.Logger) *RazorpayService {
	return &RazorpayService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// razorpayOrderRequest is the body of POST /orders
type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// RazorpayError represents an error response from Razorpay
type RazorpayError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
}

func (e *RazorpayError) Error() string {
	return fmt.Sprintf("razorpay error (status %d, %s): %s", e.StatusCode, e.Code, e.Description)
}

// CreateOrder creates a gateway order for amountPaise. Not retried on failure.
func (s *RazorpayService) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*GatewayOrder, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   amountPaise,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	url := strings.TrimSuffix(s.config.BaseURL, "/") + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.SetBasicAuth(s.config.KeyID, s.config.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send order request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleAPIError(resp.StatusCode, respBody)
	}

	var order GatewayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("gateway returned an order without id")
	}

	s.logger.WithFields(logrus.Fields{
		"gateway_order_id": order.ID,
		"amount_paise":     order.Amount,
		"receipt":          receipt,
	}).Info("Gateway order created")

	return &order, nil
}

// KeyID is the public key the client needs to open the checkout widget
func (s *RazorpayService) KeyID() string {
	return s.config.KeyID
}

// VerifyPaymentSignature checks HMAC-SHA256(keySecret, orderId|paymentId)
func (s *RazorpayService) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return utils.VerifyHMACSHA256(s.config.KeySecret, utils.PaymentSignaturePayload(orderID, paymentID), signature)
}

// VerifyWebhookSignature checks HMAC-SHA256(webhookSecret, rawBody)
func (s *RazorpayService) VerifyWebhookSignature(body []byte, signature string) bool {
	if s.config.WebhookSecret == "" {
		return false
	}
	return utils.VerifyHMACSHA256(s.config.WebhookSecret, body, signature)
}

// handleAPIError turns a non-200 Razorpay response into an error
func (s *RazorpayService) handleAPIError(statusCode int, body []byte) error {
	var envelope struct {
		Error RazorpayError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Description == "" {
		return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
	}

	apiErr := envelope.Error
	apiErr.StatusCode = statusCode
	return &apiErr
}
