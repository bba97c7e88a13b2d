package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/auth/internal/domain"
)

type OwnerRepository interface {
	CreateWithRestaurant(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Owner, error)
	FindByEmail(ctx context.Context, email string) (*domain.Owner, error)
	FindByID(ctx context.Context, id int64) (*domain.Owner, error)
	MarkVerified(ctx context.Context, ownerID int64) error
}

type ownerRepository struct {
	pool *pgxpool.Pool
}

func NewOwnerRepository(pool *pgxpool.Pool) OwnerRepository {
	return &ownerRepository{pool: pool}
}

const ownerCols = `id, restaurant_id, role, email, password_hash, name, is_verified, created_at, updated_at`

// CreateWithRestaurant creates the restaurant and its first owner account in
// one transaction; a restaurant without an owner is unreachable.
func (r *ownerRepository) CreateWithRestaurant(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Owner, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	restaurantID := uuid.NewString()
	if _, err := tx.Exec(ctx,
		`INSERT INTO restaurants (id, name) VALUES ($1, $2)`,
		restaurantID, req.RestaurantName,
	); err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO owners (restaurant_id, role, email, password_hash, name, is_verified)
		VALUES ($1, 'owner', $2, $3, $4, false)
		RETURNING ` + ownerCols

	var o domain.Owner
	err = tx.QueryRow(ctx, q, restaurantID, req.Email, passwordHash, req.Name).Scan(
		&o.ID, &o.RestaurantID, &o.Role, &o.Email, &o.PasswordHash, &o.Name, &o.IsVerified, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *ownerRepository) FindByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	const q = `SELECT ` + ownerCols + ` FROM owners WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var o domain.Owner
	err := r.pool.QueryRow(ctx, q, email).Scan(
		&o.ID, &o.RestaurantID, &o.Role, &o.Email, &o.PasswordHash, &o.Name, &o.IsVerified, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &o, err
}

func (r *ownerRepository) FindByID(ctx context.Context, id int64) (*domain.Owner, error) {
	const q = `SELECT ` + ownerCols + ` FROM owners WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var o domain.Owner
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.RestaurantID, &o.Role, &o.Email, &o.PasswordHash, &o.Name, &o.IsVerified, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &o, err
}

func (r *ownerRepository) MarkVerified(ctx context.Context, ownerID int64) error {
	const q = `UPDATE owners SET is_verified = true, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, ownerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
