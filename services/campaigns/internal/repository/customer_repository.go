package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

type CustomerRepository interface {
	FindByID(ctx context.Context, restaurantID, id string) (*domain.Customer, error)
	SetTags(ctx context.Context, restaurantID, customerID string, tags []string) error
	UpsertConsent(ctx context.Context, c *domain.Consent) error
	// EstimateAudience counts customers the campaign would reach: matching
	// the audience filter and holding consent on its channel.
	EstimateAudience(ctx context.Context, c *domain.Campaign) (int, error)
	// ListAudience returns the actual recipients, same filter as the
	// estimate.
	ListAudience(ctx context.Context, c *domain.Campaign) ([]domain.Customer, error)
}

type customerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

const customerCols = `id, restaurant_id, name, email, phone, tags, last_order_at, created_at`

func (r *customerRepository) FindByID(ctx context.Context, restaurantID, id string) (*domain.Customer, error) {
	const q = `SELECT ` + customerCols + ` FROM customers WHERE restaurant_id = $1 AND id = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Customer
	err := r.pool.QueryRow(ctx, q, restaurantID, id).Scan(
		&c.ID, &c.RestaurantID, &c.Name, &c.Email, &c.Phone, &c.Tags, &c.LastOrderAt, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (r *customerRepository) SetTags(ctx context.Context, restaurantID, customerID string, tags []string) error {
	const q = `UPDATE customers SET tags = $3 WHERE restaurant_id = $1 AND id = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, restaurantID, customerID, tags)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *customerRepository) UpsertConsent(ctx context.Context, c *domain.Consent) error {
	const q = `
		INSERT INTO channel_consents (customer_id, restaurant_id, channel, granted, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (customer_id, channel)
		DO UPDATE SET granted = EXCLUDED.granted, updated_at = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, c.CustomerID, c.RestaurantID, c.Channel, c.Granted)
	return err
}

// audienceFilter is shared by the estimate and the recipient list so the two
// can never disagree.
const audienceFilter = `
	FROM customers cu
	JOIN channel_consents cc
	  ON cc.customer_id = cu.id AND cc.channel = $2 AND cc.granted
	WHERE cu.restaurant_id = $1
	  AND ($3 = 'all'
	       OR ($3 = 'tagged' AND cu.tags && $4)
	       OR ($3 = 'last_order' AND cu.last_order_at >= now() - make_interval(days => $5)))`

func (r *customerRepository) EstimateAudience(ctx context.Context, c *domain.Campaign) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*)`+audienceFilter,
		c.RestaurantID, c.Channel, c.Audience, c.AudienceTags, c.LastOrderDays,
	).Scan(&count)
	return count, err
}

func (r *customerRepository) ListAudience(ctx context.Context, c *domain.Campaign) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q := `SELECT cu.id, cu.restaurant_id, cu.name, cu.email, cu.phone, cu.tags, cu.last_order_at, cu.created_at` + audienceFilter
	rows, err := r.pool.Query(ctx, q, c.RestaurantID, c.Channel, c.Audience, c.AudienceTags, c.LastOrderDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var cu domain.Customer
		if err := rows.Scan(
			&cu.ID, &cu.RestaurantID, &cu.Name, &cu.Email, &cu.Phone, &cu.Tags, &cu.LastOrderAt, &cu.CreatedAt,
		); err != nil {
			return nil, err
		}
		customers = append(customers, cu)
	}
	return customers, rows.Err()
}
