package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CartHoldDuration is how long a server-side cart item holds its seats
const CartHoldDuration = 15 * time.Minute

// MaxTicketsPerLine bounds the seats one cart line may hold, whatever the
// max_tickets_per_item setting says. The setting itself is capped at 100.
const MaxTicketsPerLine = 100

// TargetKind discriminates what a cart line or booking is for
type TargetKind string

const (
	TargetExhibition TargetKind = "exhibition"
	TargetShow       TargetKind = "show"
)

// Target is the bookable thing a time slot belongs to: exactly one exhibition or show.
type Target struct {
	Kind TargetKind `json:"kind" validate:"required,oneof=exhibition show"`
	ID   string     `json:"id" validate:"required,uuid"`
}

// ExhibitionTarget builds an exhibition target
func ExhibitionTarget(id string) Target {
	return Target{Kind: TargetExhibition, ID: id}
}

// ShowTarget builds a show target
func ShowTarget(id string) Target {
	return Target{Kind: TargetShow, ID: id}
}

// Validate checks the union is well formed
func (t Target) Validate() error {
	switch t.Kind {
	case TargetExhibition, TargetShow:
	default:
		return fmt.Errorf("%w: unknown target kind %q", ErrInvalidInput, t.Kind)
	}
	if _, err := uuid.Parse(t.ID); err != nil {
		return fmt.Errorf("%w: target id must be a uuid", ErrInvalidInput)
	}
	return nil
}

// Columns splits the target into the nullable exhibition_id/show_id pair used in SQL.
func (t Target) Columns() (exhibitionID, showID *string) {
	id := t.ID
	if t.Kind == TargetShow {
		return nil, &id
	}
	return &id, nil
}

// TargetFromColumns rebuilds a target from nullable exhibition/show id columns.
func TargetFromColumns(exhibitionID, showID *string) (Target, error) {
	switch {
	case exhibitionID != nil && showID == nil:
		return ExhibitionTarget(*exhibitionID), nil
	case showID != nil && exhibitionID == nil:
		return ShowTarget(*showID), nil
	default:
		return Target{}, errors.New("row must reference exactly one of exhibition or show")
	}
}

// TicketQuantities maps a ticket type (adult, child, ...) to a count
type TicketQuantities map[string]int

// Total returns the number of seats the quantities occupy
func (q TicketQuantities) Total() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

// Validate rejects empty, negative or oversized quantities. Counts are checked
// one by one and as a running total so the sum can never wrap.
func (q TicketQuantities) Validate() error {
	if len(q) == 0 {
		return fmt.Errorf("%w: at least one ticket type is required", ErrInvalidInput)
	}
	total := 0
	for ticketType, n := range q {
		if ticketType == "" {
			return fmt.Errorf("%w: ticket type must not be empty", ErrInvalidInput)
		}
		if n < 0 {
			return fmt.Errorf("%w: quantity for %s must not be negative", ErrInvalidInput, ticketType)
		}
		if n > MaxTicketsPerLine-total {
			return fmt.Errorf("%w: at most %d tickets per item", ErrInvalidInput, MaxTicketsPerLine)
		}
		total += n
	}
	if total == 0 {
		return fmt.Errorf("%w: at least one ticket is required", ErrInvalidInput)
	}
	return nil
}

// Value stores the quantities as JSONB
func (q TicketQuantities) Value() (driver.Value, error) {
	if q == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(q)
}

// Scan reads the quantities from JSONB
func (q *TicketQuantities) Scan(src interface{}) error {
	return scanJSON(src, q)
}

// CartItem is a server-side hold on seats of a time slot
type CartItem struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	TimeSlotID       string           `json:"timeSlotId"`
	Target           Target           `json:"target"`
	BookingDate      string           `json:"bookingDate"`
	TicketQuantities TicketQuantities `json:"ticketQuantities"`
	SubtotalPaise    int64            `json:"subtotalPaise"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// IsExpired reports whether the hold has lapsed at now
func (c *CartItem) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Snapshot copies the item into its immutable checkout form
func (c *CartItem) Snapshot() CartSnapshotItem {
	quantities := make(TicketQuantities, len(c.TicketQuantities))
	for k, v := range c.TicketQuantities {
		quantities[k] = v
	}
	return CartSnapshotItem{
		CartItemID:       c.ID,
		TimeSlotID:       c.TimeSlotID,
		Target:           c.Target,
		BookingDate:      c.BookingDate,
		TicketQuantities: quantities,
		SubtotalPaise:    c.SubtotalPaise,
	}
}

// CartItemCreateRequest is what the cart repository needs to place a hold
type CartItemCreateRequest struct {
	UserID           string
	TimeSlotID       string
	Target           Target
	BookingDate      string
	TicketQuantities TicketQuantities
	SubtotalPaise    int64
	ExpiresAt        time.Time
}

// CartSnapshotItem is one line of a cart as it was when checkout started
type CartSnapshotItem struct {
	CartItemID       string           `json:"cartItemId"`
	TimeSlotID       string           `json:"timeSlotId"`
	Target           Target           `json:"target"`
	BookingDate      string           `json:"bookingDate"`
	TicketQuantities TicketQuantities `json:"ticketQuantities"`
	SubtotalPaise    int64            `json:"subtotalPaise"`
}

// CartSnapshot is the cart copy stored on a payment order
type CartSnapshot []CartSnapshotItem

// TotalPaise sums the snapshot subtotals
func (s CartSnapshot) TotalPaise() int64 {
	var total int64
	for _, item := range s {
		total += item.SubtotalPaise
	}
	return total
}

// CartItemIDs lists the cart rows the snapshot was taken from
func (s CartSnapshot) CartItemIDs() []string {
	ids := make([]string, 0, len(s))
	for _, item := range s {
		ids = append(ids, item.CartItemID)
	}
	return ids
}

// Value stores the snapshot as JSONB
func (s CartSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan reads the snapshot from JSONB
func (s *CartSnapshot) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// GuestCartItem is a cart line staged in a cookie session before login.
// It holds no seats.
type GuestCartItem struct {
	TimeSlotID       string           `json:"timeSlotId"`
	Target           Target           `json:"target"`
	BookingDate      string           `json:"bookingDate"`
	TicketQuantities TicketQuantities `json:"ticketQuantities"`
	AddedAt          time.Time        `json:"addedAt"`
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}
