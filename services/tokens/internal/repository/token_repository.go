package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/tokens/internal/domain"
)

type TokenRepository interface {
	Create(ctx context.Context, customerID, restaurantID, token string, rewardID *string, expiresAt time.Time) (*domain.TokenRecord, error)

	// FindActive returns the unconsumed record matching the full compound key,
	// or nil. No expiry filter: the service decides what to tell the caller.
	FindActive(ctx context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error)

	// Find is the diagnostic lookup: no used filter, no expiry filter.
	Find(ctx context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error)

	// Consume flips used to true iff it is still false. The used=false
	// predicate inside the UPDATE is the protocol's only serialization point;
	// concurrent scans race here and exactly one wins.
	Consume(ctx context.Context, id string) (bool, error)

	DeleteExpired(ctx context.Context, restaurantID string) (int64, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenCols = `id, customer_id, restaurant_id, token, reward_id, expires_at, used, created_at`

func (r *tokenRepository) Create(ctx context.Context, customerID, restaurantID, token string, rewardID *string, expiresAt time.Time) (*domain.TokenRecord, error) {
	const q = `
		INSERT INTO qr_tokens (customer_id, restaurant_id, token, reward_id, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING ` + tokenCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var t domain.TokenRecord
	err := r.pool.QueryRow(ctx, q, customerID, restaurantID, token, rewardID, expiresAt).Scan(
		&t.ID, &t.CustomerID, &t.RestaurantID, &t.Token,
		&t.RewardID, &t.ExpiresAt, &t.Used, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) FindActive(ctx context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error) {
	const q = `
		SELECT ` + tokenCols + `
		FROM qr_tokens
		WHERE token = $1
		  AND customer_id = $2
		  AND restaurant_id = $3
		  AND used = false`

	return r.queryOne(ctx, q, token, customerID, restaurantID)
}

func (r *tokenRepository) Find(ctx context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error) {
	const q = `
		SELECT ` + tokenCols + `
		FROM qr_tokens
		WHERE token = $1
		  AND customer_id = $2
		  AND restaurant_id = $3`

	return r.queryOne(ctx, q, token, customerID, restaurantID)
}

func (r *tokenRepository) queryOne(ctx context.Context, q string, args ...any) (*domain.TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var t domain.TokenRecord
	err := r.pool.QueryRow(ctx, q, args...).Scan(
		&t.ID, &t.CustomerID, &t.RestaurantID, &t.Token,
		&t.RewardID, &t.ExpiresAt, &t.Used, &t.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) Consume(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE qr_tokens
		SET used = true
		WHERE id = $1
		  AND used = false
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var consumed string
	err := r.pool.QueryRow(ctx, q, id).Scan(&consumed)
	if err == pgx.ErrNoRows {
		return false, nil // Lost the race or already consumed
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, restaurantID string) (int64, error) {
	const q = `
		DELETE FROM qr_tokens
		WHERE restaurant_id = $1
		  AND expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, restaurantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *tokenRepository) SweepExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM qr_tokens WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
