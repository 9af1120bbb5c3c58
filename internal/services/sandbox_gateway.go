package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/utils"
)

// SandboxGateway stands in for Razorpay when no credentials are configured.
// Orders are created locally; signatures use the same HMAC scheme so a client
// can sign with the configured secrets.
type SandboxGateway struct {
	config config.RazorpayConfig
	logger *logrus.Logger
}

// NewSandboxGateway creates a local gateway
func NewSandboxGateway(cfg config.RazorpayConfig, logger *logrus.Logger) *SandboxGateway {
	return &SandboxGateway{config: cfg, logger: logger}
}

// NewPaymentGateway prefers the live Razorpay client and falls back to the sandbox
func NewPaymentGateway(cfg config.RazorpayConfig, logger *logrus.Logger) PaymentGateway {
	if !cfg.Sandbox() {
		logger.Info("Payment gateway: using Razorpay API")
		return NewRazorpayService(cfg, logger)
	}
	logger.Warn("Payment gateway: using sandbox (no Razorpay credentials provided)")
	return NewSandboxGateway(cfg, logger)
}

// CreateOrder returns a locally generated order
func (g *SandboxGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*GatewayOrder, error) {
	id := "order_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]

	g.logger.WithFields(logrus.Fields{
		"gateway_order_id": id,
		"amount_paise":     amountPaise,
	}).Info("Sandbox gateway order created")

	return &GatewayOrder{
		ID:       id,
		Entity:   "order",
		Amount:   amountPaise,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

// KeyID returns a placeholder key id
func (g *SandboxGateway) KeyID() string {
	if g.config.KeyID != "" {
		return g.config.KeyID
	}
	return "rzp_sandbox"
}

// VerifyPaymentSignature uses the same scheme as the live gateway
func (g *SandboxGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return utils.VerifyHMACSHA256(g.config.KeySecret, utils.PaymentSignaturePayload(orderID, paymentID), signature)
}

// VerifyWebhookSignature uses the same scheme as the live gateway
func (g *SandboxGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return utils.VerifyHMACSHA256(g.config.WebhookSecret, body, signature)
}
