package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

type PromoRepository interface {
	Create(ctx context.Context, p *domain.PromoCode) (*domain.PromoCode, error)
	FindByCode(ctx context.Context, restaurantID, code string) (*domain.PromoCode, error)
	List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error)
	Deactivate(ctx context.Context, restaurantID, id string) error
	// Redeem burns one use. The counter bump is conditional on every cap and
	// window in a single statement; false means the code had no use left for
	// this customer.
	Redeem(ctx context.Context, restaurantID, code, customerID string) (*domain.PromoCode, bool, error)
}

type promoRepository struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) PromoRepository {
	return &promoRepository{pool: pool}
}

const promoCols = `id, restaurant_id, campaign_id, code, discount_type, discount_value,
	min_spend, max_redemptions, per_customer_limit, redemptions, valid_from, valid_until, active, created_at`

func scanPromo(row pgx.Row) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := row.Scan(
		&p.ID, &p.RestaurantID, &p.CampaignID, &p.Code, &p.DiscountType, &p.DiscountValue,
		&p.MinSpend, &p.MaxRedemptions, &p.PerCustomerLimit, &p.Redemptions, &p.ValidFrom, &p.ValidUntil, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promoRepository) Create(ctx context.Context, p *domain.PromoCode) (*domain.PromoCode, error) {
	const q = `
		INSERT INTO promo_codes (restaurant_id, campaign_id, code, discount_type, discount_value,
			min_spend, max_redemptions, per_customer_limit, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
		RETURNING ` + promoCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanPromo(r.pool.QueryRow(ctx, q,
		p.RestaurantID, p.CampaignID, p.Code, p.DiscountType, p.DiscountValue,
		p.MinSpend, p.MaxRedemptions, p.PerCustomerLimit, p.ValidFrom, p.ValidUntil,
	))
}

func (r *promoRepository) FindByCode(ctx context.Context, restaurantID, code string) (*domain.PromoCode, error) {
	const q = `SELECT ` + promoCols + ` FROM promo_codes WHERE restaurant_id = $1 AND code = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPromo(r.pool.QueryRow(ctx, q, restaurantID, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *promoRepository) List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT ` + promoCols + `
		FROM promo_codes
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, restaurantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []domain.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *p)
	}
	return promos, rows.Err()
}

func (r *promoRepository) Deactivate(ctx context.Context, restaurantID, id string) error {
	const q = `UPDATE promo_codes SET active = false WHERE restaurant_id = $1 AND id = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, restaurantID, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *promoRepository) Redeem(ctx context.Context, restaurantID, code, customerID string) (*domain.PromoCode, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// The conditional update is the serialization point for the global cap.
	const q = `
		UPDATE promo_codes
		SET redemptions = redemptions + 1
		WHERE restaurant_id = $1
		  AND code = $2
		  AND active
		  AND (valid_from IS NULL OR valid_from <= now())
		  AND (valid_until IS NULL OR valid_until > now())
		  AND (max_redemptions = 0 OR redemptions < max_redemptions)
		RETURNING ` + promoCols

	p, err := scanPromo(tx.QueryRow(ctx, q, restaurantID, code))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if p.PerCustomerLimit > 0 {
		var used int
		err := tx.QueryRow(ctx,
			`SELECT count(*) FROM promo_redemptions WHERE promo_code_id = $1 AND customer_id = $2`,
			p.ID, customerID,
		).Scan(&used)
		if err != nil {
			return nil, false, err
		}
		if used >= p.PerCustomerLimit {
			// Rollback undoes the counter bump.
			return nil, false, nil
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO promo_redemptions (promo_code_id, customer_id) VALUES ($1, $2)`,
		p.ID, customerID,
	); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return p, true, nil
}
