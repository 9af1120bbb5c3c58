package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// PaymentOrderStatus represents the status of a payment order
type PaymentOrderStatus string

const (
	PaymentOrderCreated PaymentOrderStatus = "created"
	PaymentOrderPaid    PaymentOrderStatus = "paid"
	PaymentOrderFailed  PaymentOrderStatus = "failed"
	PaymentOrderExpired PaymentOrderStatus = "expired"
)

// DefaultCurrency is the gateway currency for all orders
const DefaultCurrency = "INR"

// PaymentOrder tracks a gateway order from checkout until it is paid, failed or expired
type PaymentOrder struct {
	ID                     string             `json:"id"`
	GatewayOrderID         string             `json:"gatewayOrderId"`
	UserID                 string             `json:"userId"`
	AmountPaise            int64              `json:"amountInPaise"`
	Currency               string             `json:"currency"`
	Status                 PaymentOrderStatus `json:"status"`
	CartSnapshot           CartSnapshot       `json:"cartSnapshot"`
	Contact                ContactDetails     `json:"contact"`
	PaymentID              *string            `json:"paymentId,omitempty"`
	PaymentSignature       *string            `json:"-"`
	ReconciliationRequired bool               `json:"reconciliationRequired"`
	FailureDetails         ItemErrors         `json:"failureDetails,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
	PaidAt                 *time.Time         `json:"paidAt,omitempty"`
}

// IsPaid returns true once the order reached its terminal success state
func (o *PaymentOrder) IsPaid() bool {
	return o.Status == PaymentOrderPaid
}

// AmountInRupees returns the amount in rupees for display
func (o *PaymentOrder) AmountInRupees() float64 {
	return PaiseToRupees(o.AmountPaise)
}

// CanTransitionTo reports whether the order may move to next.
// Only created orders move; paid, failed and expired are terminal.
func (o *PaymentOrder) CanTransitionTo(next PaymentOrderStatus) bool {
	if o.Status != PaymentOrderCreated {
		return false
	}
	switch next {
	case PaymentOrderPaid, PaymentOrderFailed, PaymentOrderExpired:
		return true
	}
	return false
}

// IsClosed reports whether the order ended without a payment
func (o *PaymentOrder) IsClosed() bool {
	return o.Status == PaymentOrderFailed || o.Status == PaymentOrderExpired
}

// PaymentOrderCreateRequest is the data needed to persist a new payment order
type PaymentOrderCreateRequest struct {
	GatewayOrderID string
	UserID         string
	AmountPaise    int64
	Currency       string
	CartSnapshot   CartSnapshot
	Contact        ContactDetails
}

// ContactDetails are the guest details captured at checkout
type ContactDetails struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

var phoneRegex = regexp.MustCompile(`^\+?[0-9 \-]{7,20}$`)

// Normalize trims whitespace and lower-cases the email
func (c ContactDetails) Normalize() ContactDetails {
	return ContactDetails{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// ValidatePhone checks the optional phone number format
func (c ContactDetails) ValidatePhone() error {
	if c.Phone == "" {
		return nil
	}
	if !phoneRegex.MatchString(c.Phone) {
		return fmt.Errorf("%w: invalid phone number", ErrInvalidInput)
	}
	return nil
}

// ItemErrors is a JSONB list of per-item failures kept for manual reconciliation
type ItemErrors []ItemError

// Value stores the errors as JSONB
func (e ItemErrors) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

// Scan reads the errors from JSONB
func (e *ItemErrors) Scan(src interface{}) error {
	return scanJSON(src, e)
}

// PaiseToRupees converts minor units to rupees
func PaiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}

// RupeesToPaise converts rupees to the gateway's minor unit, rounding to the nearest paisa
func RupeesToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}
