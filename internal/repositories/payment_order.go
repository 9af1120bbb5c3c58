package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"museum-ticketing-platform/internal/models"
)

// PaymentOrderRepository handles payment order data operations
type PaymentOrderRepository struct {
	db *sql.DB
}

// NewPaymentOrderRepository creates a new payment order repository
func NewPaymentOrderRepository(db *sql.DB) *PaymentOrderRepository {
	return &PaymentOrderRepository{db: db}
}

const paymentOrderColumns = `id, gateway_order_id, user_id, amount_paise, currency, status, cart_snapshot,
	contact_name, contact_email, contact_phone, payment_id, payment_signature,
	reconciliation_required, failure_details, created_at, updated_at, paid_at`

// Create persists a new order in the created state
func (r *PaymentOrderRepository) Create(ctx context.Context, req *models.PaymentOrderCreateRequest) (*models.PaymentOrder, error) {
	var phone *string
	if req.Contact.Phone != "" {
		phone = &req.Contact.Phone
	}

	query := `
		INSERT INTO payment_orders (gateway_order_id, user_id, amount_paise, currency, status,
		                            cart_snapshot, contact_name, contact_email, contact_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + paymentOrderColumns

	order, err := scanPaymentOrder(r.db.QueryRowContext(ctx, query,
		req.GatewayOrderID,
		req.UserID,
		req.AmountPaise,
		req.Currency,
		models.PaymentOrderCreated,
		req.CartSnapshot,
		req.Contact.Name,
		req.Contact.Email,
		phone,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}

	return order, nil
}

// GetByGatewayOrderID loads an order by the gateway's order id
func (r *PaymentOrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	query := `SELECT ` + paymentOrderColumns + ` FROM payment_orders WHERE gateway_order_id = $1`

	order, err := scanPaymentOrder(r.db.QueryRowContext(ctx, query, gatewayOrderID))
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}

	return order, nil
}

// GetByGatewayOrderIDForUser loads an order only if it belongs to userID
func (r *PaymentOrderRepository) GetByGatewayOrderIDForUser(ctx context.Context, gatewayOrderID, userID string) (*models.PaymentOrder, error) {
	query := `SELECT ` + paymentOrderColumns + ` FROM payment_orders WHERE gateway_order_id = $1 AND user_id = $2`

	order, err := scanPaymentOrder(r.db.QueryRowContext(ctx, query, gatewayOrderID, userID))
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}

	return order, nil
}

// MarkPaid moves a created order to paid. The WHERE guard makes the transition
// happen at most once; the loser gets ErrOrderAlreadyPaid, and a capture for an
// order that already failed or expired gets ErrOrderClosed.
func (r *PaymentOrderRepository) MarkPaid(ctx context.Context, id, paymentID string, signature *string) (*models.PaymentOrder, error) {
	query := `
		UPDATE payment_orders
		SET status = 'paid',
		    payment_id = $2,
		    payment_signature = COALESCE($3, payment_signature),
		    paid_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'created'
		RETURNING ` + paymentOrderColumns

	order, err := scanPaymentOrder(r.db.QueryRowContext(ctx, query, id, paymentID, signature))
	if err == sql.ErrNoRows {
		return nil, r.markPaidConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment order paid: %w", err)
	}

	return order, nil
}

func (r *PaymentOrderRepository) markPaidConflict(ctx context.Context, id string) error {
	var status models.PaymentOrderStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM payment_orders WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return models.ErrPaymentOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read payment order status: %w", err)
	}
	if status == models.PaymentOrderPaid {
		return models.ErrOrderAlreadyPaid
	}
	return models.ErrOrderClosed
}

// TransitionStatus moves an order from one status to another. Returns false if
// the order was not in the from state.
func (r *PaymentOrderRepository) TransitionStatus(ctx context.Context, gatewayOrderID string, from, to models.PaymentOrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_orders
		SET status = $3, updated_at = NOW()
		WHERE gateway_order_id = $1 AND status = $2`, gatewayOrderID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update payment order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected > 0, nil
}

// FlagForReconciliation records per-item failures that need an operator
func (r *PaymentOrderRepository) FlagForReconciliation(ctx context.Context, id string, failures models.ItemErrors) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_orders
		SET reconciliation_required = TRUE,
		    failure_details = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, failures)
	if err != nil {
		return fmt.Errorf("failed to flag payment order: %w", err)
	}
	return nil
}

// ListNeedingReconciliation returns flagged orders, newest first
func (r *PaymentOrderRepository) ListNeedingReconciliation(ctx context.Context, limit int) ([]*models.PaymentOrder, error) {
	query := `SELECT ` + paymentOrderColumns + `
		FROM payment_orders
		WHERE reconciliation_required
		ORDER BY updated_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.PaymentOrder
	for rows.Next() {
		order, err := scanPaymentOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment order: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment orders: %w", err)
	}

	return orders, nil
}

func scanPaymentOrder(row rowScanner) (*models.PaymentOrder, error) {
	order := &models.PaymentOrder{}
	var phone, paymentID, signature sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.GatewayOrderID,
		&order.UserID,
		&order.AmountPaise,
		&order.Currency,
		&order.Status,
		&order.CartSnapshot,
		&order.Contact.Name,
		&order.Contact.Email,
		&phone,
		&paymentID,
		&signature,
		&order.ReconciliationRequired,
		&order.FailureDetails,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	order.Contact.Phone = phone.String
	order.PaymentID = nullableString(paymentID)
	order.PaymentSignature = nullableString(signature)
	order.PaidAt = nullableTime(paidAt)

	return order, nil
}
