package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/savebox/box-orders/internal/domain"
)

const orderColumns = `
	id, customer_id, surprise_box_id, store_id, status, payment_type,
	fulfillment_type, payment_method, amount, delivery_address, pickup_code,
	order_date, pickuped_at, cancelled_by, cancelled_at, refund_amount`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.BoxID, &o.StoreID, &o.Status, &o.PaymentType,
		&o.FulfillmentType, &o.PaymentMethod, &o.Amount, &o.DeliveryAddress, &o.PickupCode,
		&o.OrderDate, &o.PickupedAt, &o.CancelledBy, &o.CancelledAt, &o.RefundAmount,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOrder writes the order row inside the order-creation transaction.
// A pickup-code collision surfaces as a unique violation; the caller
// regenerates the code and retries the insert.
func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	return tx.QueryRow(ctx, `
		INSERT INTO orders (
			customer_id, surprise_box_id, store_id, status, payment_type,
			fulfillment_type, payment_method, amount, delivery_address, pickup_code, order_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		order.CustomerID, order.BoxID, order.StoreID, order.Status, order.PaymentType,
		order.FulfillmentType, order.PaymentMethod, order.Amount, order.DeliveryAddress,
		order.PickupCode, order.OrderDate,
	).Scan(&order.ID)
}

func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

// GetOrderForUpdate locks the order row for the completion transaction so
// a concurrent re-scan serializes behind it.
func (r *Repository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

func (r *Repository) FindOrderByPickupCode(ctx context.Context, pickupCode string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE pickup_code = $1`, pickupCode))
}

// CompleteOrder stamps the order completed with its pickup moment. The
// caller verified the transition against the order state machine while
// holding the row lock.
func (r *Repository) CompleteOrder(ctx context.Context, tx pgx.Tx, orderID int64, pickupedAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = 'completed', pickuped_at = $2
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled', 'refunded')
	`, orderID, pickupedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyFinalized
	}
	return nil
}

// CancelOrder records a cancellation with who triggered it and the refund
// amount. The surrounding workflow (refund computation, notification) lives
// upstream.
func (r *Repository) CancelOrder(ctx context.Context, orderID int64, by domain.CancellerType, refundAmount int64, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancelled_by = $2, cancelled_at = $3, refund_amount = $4
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled', 'refunded')
	`, orderID, by, now, refundAmount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyFinalized
	}
	return nil
}
