package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/opskap1/temnos/services/auth/internal/domain"
)

type VerifyRepository interface {
	// Email verification tokens
	CreateEmailVerification(ctx context.Context, ownerID int64, token string, expiresAt time.Time) error
	ConsumeEmailVerification(ctx context.Context, token string) (ownerID int64, err error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	// Station pairing codes
	CreatePairingCode(ctx context.Context, restaurantID, codeHash string, expiresAt time.Time) error
	CheckPairingCode(ctx context.Context, restaurantID, code string) (bool, error)
}

type verifyRepository struct {
	pool *pgxpool.Pool
}

func NewVerifyRepository(pool *pgxpool.Pool) VerifyRepository {
	return &verifyRepository{pool: pool}
}

func (r *verifyRepository) CreateEmailVerification(ctx context.Context, ownerID int64, token string, expiresAt time.Time) error {
	const q = `
		INSERT INTO email_verification_tokens (owner_id, token, expires_at)
		VALUES ($1, $2, $3)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, ownerID, token, expiresAt)
	return err
}

func (r *verifyRepository) ConsumeEmailVerification(ctx context.Context, token string) (int64, error) {
	const q = `
		UPDATE email_verification_tokens
		SET used_at = now()
		WHERE token = $1
		  AND used_at IS NULL
		  AND expires_at > now()
		RETURNING owner_id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var ownerID int64
	err := r.pool.QueryRow(ctx, q, token).Scan(&ownerID)
	if err == pgx.ErrNoRows {
		return 0, nil // invalid, used, or expired
	}
	return ownerID, err
}

func (r *verifyRepository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM email_verification_tokens
		WHERE (used_at IS NOT NULL AND used_at < now() - interval '30 days')
		   OR (used_at IS NULL AND expires_at < now() - interval '7 days')`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *verifyRepository) CreatePairingCode(ctx context.Context, restaurantID, codeHash string, expiresAt time.Time) error {
	const q = `
		INSERT INTO station_pairing_codes (restaurant_id, code_hash, expires_at)
		VALUES ($1, $2, $3)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, restaurantID, codeHash, expiresAt)
	return err
}

// CheckPairingCode validates a candidate against the most recently issued
// code for the restaurant. The code is consumed on success; wrong guesses
// count toward the attempt cap.
func (r *verifyRepository) CheckPairingCode(ctx context.Context, restaurantID, code string) (bool, error) {
	const q = `
		SELECT id, code_hash, expires_at, used_at, attempts
		FROM station_pairing_codes
		WHERE restaurant_id = $1
		ORDER BY id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		id       int64
		hash     string
		expires  time.Time
		used     *time.Time
		attempts int
	)

	err := r.pool.QueryRow(ctx, q, restaurantID).Scan(&id, &hash, &expires, &used, &attempts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	if used != nil || time.Now().After(expires) || attempts >= domain.MaxPairingAttempts {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if _, err := r.pool.Exec(ctx, `UPDATE station_pairing_codes SET attempts = attempts + 1 WHERE id = $1`, id); err != nil {
			return false, err
		}
		return false, nil
	}

	// Consume conditionally. A concurrent exchange that lost the race matches
	// no rows and is rejected; the code pairs exactly one station.
	const consume = `
		UPDATE station_pairing_codes
		SET used_at = now()
		WHERE id = $1 AND used_at IS NULL
		RETURNING id`

	var consumedID int64
	err = r.pool.QueryRow(ctx, consume, id).Scan(&consumedID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
