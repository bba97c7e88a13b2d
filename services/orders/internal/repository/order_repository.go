package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/orders/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) (*domain.Order, error)
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error)
	// ListByOwner returns the owner's fully paid orders, newest first.
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error)
	// HasCompletedOrder reports whether the owner already has a paid order,
	// which disqualifies the first-order waiver.
	HasCompletedOrder(ctx context.Context, ownerID int64) (bool, error)
	// HasActivePaidSubscription checks for an active non-trial subscription.
	HasActivePaidSubscription(ctx context.Context, ownerID int64) (bool, error)
	SetPaymentIntent(ctx context.Context, id, paymentIntentID string) error
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
	// UpdateStatus stamps the new status into status_timestamps and applies
	// it only while the row is still in the expected status.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error)
	SetProofOfDelivery(ctx context.Context, id, url string) error
}

type orderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &orderRepository{pool: pool}
}

const orderCols = `id, owner_id, restaurant_id, restaurant_name, order_status, includes_tablet,
	base_pack_cost, tablet_cost, total_cost, payment_status, stripe_payment_intent_id,
	is_first_free_order, delivery_address_line1, delivery_address_line2, delivery_city,
	delivery_emirate, delivery_contact_number, proof_of_delivery_url, estimated_delivery,
	delivered_at, status_timestamps, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var timestamps []byte
	err := row.Scan(
		&o.ID, &o.OwnerID, &o.RestaurantID, &o.RestaurantName, &o.Status, &o.IncludesTablet,
		&o.BasePackCost, &o.TabletCost, &o.TotalCost, &o.PaymentStatus, &o.PaymentIntentID,
		&o.IsFirstFreeOrder, &o.Address.Line1, &o.Address.Line2, &o.Address.City,
		&o.Address.Emirate, &o.Address.ContactNumber, &o.ProofOfDelivery, &o.EstimatedDelivery,
		&o.DeliveredAt, &timestamps, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(timestamps) > 0 {
		if err := json.Unmarshal(timestamps, &o.StatusTimestamps); err != nil {
			return nil, fmt.Errorf("failed to decode status timestamps: %w", err)
		}
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	const q = `
		INSERT INTO starter_pack_orders (owner_id, restaurant_id, restaurant_name, order_status,
			includes_tablet, base_pack_cost, tablet_cost, total_cost, payment_status,
			is_first_free_order, delivery_address_line1, delivery_address_line2, delivery_city,
			delivery_emirate, delivery_contact_number, estimated_delivery, status_timestamps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + orderCols

	timestamps, err := json.Marshal(o.StatusTimestamps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status timestamps: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanOrder(r.pool.QueryRow(ctx, q,
		o.OwnerID, o.RestaurantID, o.RestaurantName, o.Status,
		o.IncludesTablet, o.BasePackCost, o.TabletCost, o.TotalCost, o.PaymentStatus,
		o.IsFirstFreeOrder, o.Address.Line1, o.Address.Line2, o.Address.City,
		o.Address.Emirate, o.Address.ContactNumber, o.EstimatedDelivery, timestamps,
	))
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM starter_pack_orders WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	o, err := scanOrder(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *orderRepository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM starter_pack_orders WHERE stripe_payment_intent_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	o, err := scanOrder(r.pool.QueryRow(ctx, q, paymentIntentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *orderRepository) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Order, error) {
	const q = `
		SELECT ` + orderCols + `
		FROM starter_pack_orders
		WHERE owner_id = $1 AND payment_status = 'completed'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, q, ownerID, limit, offset)
}

func (r *orderRepository) ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	const q = `
		SELECT ` + orderCols + `
		FROM starter_pack_orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return r.list(ctx, q, limit, offset)
}

func (r *orderRepository) list(ctx context.Context, q string, args ...interface{}) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *orderRepository) HasCompletedOrder(ctx context.Context, ownerID int64) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM starter_pack_orders WHERE owner_id = $1 AND payment_status = 'completed')`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, ownerID).Scan(&exists)
	return exists, err
}

func (r *orderRepository) HasActivePaidSubscription(ctx context.Context, ownerID int64) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM subscriptions
		WHERE owner_id = $1 AND status = 'active' AND plan_type <> 'trial')`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, ownerID).Scan(&exists)
	return exists, err
}

func (r *orderRepository) SetPaymentIntent(ctx context.Context, id, paymentIntentID string) error {
	const q = `UPDATE starter_pack_orders
		SET stripe_payment_intent_id = $2, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, paymentIntentID)
	return err
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	const q = `UPDATE starter_pack_orders
		SET payment_status = $2, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, status)
	return err
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error) {
	// status_timestamps keeps the time each stage was reached; delivered_at
	// is denormalized for the common query.
	const q = `
		UPDATE starter_pack_orders
		SET order_status = $3,
			status_timestamps = coalesce(status_timestamps, '{}'::jsonb) || jsonb_build_object($3::text, $4::timestamptz),
			delivered_at = CASE WHEN $3 = 'delivered' THEN $4 ELSE delivered_at END,
			updated_at = now()
		WHERE id = $1 AND order_status = $2
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var updated string
	err := r.pool.QueryRow(ctx, q, id, from, to, at).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *orderRepository) SetProofOfDelivery(ctx context.Context, id, url string) error {
	const q = `UPDATE starter_pack_orders
		SET proof_of_delivery_url = $2, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, url)
	return err
}
