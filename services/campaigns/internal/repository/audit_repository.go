package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

type AuditRepository interface {
	Record(ctx context.Context, e *domain.AuditEntry) error
	ListByEntity(ctx context.Context, restaurantID, entityType, entityID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, e *domain.AuditEntry) error {
	const q = `
		INSERT INTO audit_log (restaurant_id, actor, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, e.RestaurantID, e.Actor, e.Action, e.EntityType, e.EntityID, e.Detail)
	return err
}

func (r *auditRepository) ListByEntity(ctx context.Context, restaurantID, entityType, entityID string) ([]domain.AuditEntry, error) {
	const q = `
		SELECT id, restaurant_id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_log
		WHERE restaurant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, restaurantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.RestaurantID, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
