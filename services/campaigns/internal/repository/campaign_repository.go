package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	FindByID(ctx context.Context, restaurantID, id string) (*domain.Campaign, error)
	List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.Campaign, error)
	// UpdateStatus applies the move only when the row is still in the
	// expected status; returns false when someone else moved it first.
	UpdateStatus(ctx context.Context, restaurantID, id string, from, to domain.CampaignStatus) (bool, error)
	SetSchedule(ctx context.Context, restaurantID, id string, at time.Time) error
	// ListDue returns scheduled campaigns whose send time has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

type campaignRepository struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) CampaignRepository {
	return &campaignRepository{pool: pool}
}

const campaignCols = `id, restaurant_id, name, type, status, channel, subject, body,
	audience, audience_tags, last_order_days, scheduled_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.RestaurantID, &c.Name, &c.Type, &c.Status, &c.Channel, &c.Subject, &c.Body,
		&c.Audience, &c.AudienceTags, &c.LastOrderDays, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepository) Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	const q = `
		INSERT INTO campaigns (restaurant_id, name, type, status, channel, subject, body,
			audience, audience_tags, last_order_days, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + campaignCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanCampaign(r.pool.QueryRow(ctx, q,
		c.RestaurantID, c.Name, c.Type, c.Status, c.Channel, c.Subject, c.Body,
		c.Audience, c.AudienceTags, c.LastOrderDays, c.ScheduledAt,
	))
}

func (r *campaignRepository) FindByID(ctx context.Context, restaurantID, id string) (*domain.Campaign, error) {
	const q = `SELECT ` + campaignCols + ` FROM campaigns WHERE restaurant_id = $1 AND id = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCampaign(r.pool.QueryRow(ctx, q, restaurantID, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *campaignRepository) List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT ` + campaignCols + `
		FROM campaigns
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

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (r *campaignRepository) UpdateStatus(ctx context.Context, restaurantID, id string, from, to domain.CampaignStatus) (bool, error) {
	const q = `
		UPDATE campaigns
		SET status = $4, updated_at = now()
		WHERE restaurant_id = $1 AND id = $2 AND status = $3
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var updated string
	err := r.pool.QueryRow(ctx, q, restaurantID, id, from, to).Scan(&updated)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *campaignRepository) SetSchedule(ctx context.Context, restaurantID, id string, at time.Time) error {
	const q = `
		UPDATE campaigns
		SET scheduled_at = $3, updated_at = now()
		WHERE restaurant_id = $1 AND id = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, restaurantID, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *campaignRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT ` + campaignCols + `
		FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}
