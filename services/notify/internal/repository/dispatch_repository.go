package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opskap1/temnos/services/notify/internal/domain"
)

type DispatchRepository interface {
	// FindCampaign loads the deliverable slice of a campaign, including the
	// restaurant name and the newest active promo code tied to it.
	FindCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	// ListRecipients returns the campaign's audience, already filtered down
	// to customers consenting on the campaign's channel.
	ListRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error)
	// MarkSent completes the campaign; false when it was not in sending.
	MarkSent(ctx context.Context, id string) (bool, error)
	// HasConsent reports whether a customer accepts the channel. Used for
	// one-off notifications that bypass the audience query.
	HasConsent(ctx context.Context, restaurantID, customerID string, channel domain.Channel) (bool, error)
}

type dispatchRepository struct {
	pool *pgxpool.Pool
}

func NewDispatchRepository(pool *pgxpool.Pool) DispatchRepository {
	return &dispatchRepository{pool: pool}
}

func (r *dispatchRepository) FindCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	const q = `
		SELECT c.id, c.restaurant_id, coalesce(rst.name, ''), c.channel, c.subject, c.body,
			c.audience, c.audience_tags, c.last_order_days, c.status,
			coalesce((SELECT p.code FROM promo_codes p
				WHERE p.campaign_id = c.id AND p.active
				ORDER BY p.created_at DESC LIMIT 1), '')
		FROM campaigns c
		LEFT JOIN restaurants rst ON rst.id = c.restaurant_id
		WHERE c.id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Campaign
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.RestaurantID, &c.RestaurantName, &c.Channel, &c.Subject, &c.Body,
		&c.Audience, &c.AudienceTags, &c.LastOrderDays, &c.Status, &c.PromoCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *dispatchRepository) ListRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	// Same audience predicate the campaigns service estimates with.
	const q = `
		SELECT cu.id, cu.name, coalesce(cu.email, ''), coalesce(cu.phone, '')
		FROM customers cu
		JOIN channel_consents cc
		  ON cc.customer_id = cu.id AND cc.channel = $2 AND cc.granted
		WHERE cu.restaurant_id = $1
		  AND ($3 = 'all'
		       OR ($3 = 'tagged' AND cu.tags && $4)
		       OR ($3 = 'last_order' AND cu.last_order_at >= now() - make_interval(days => $5)))`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, c.RestaurantID, c.Channel, c.Audience, c.AudienceTags, c.LastOrderDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.CustomerID, &rec.Name, &rec.Email, &rec.Phone); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *dispatchRepository) MarkSent(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE campaigns
		SET status = 'sent', updated_at = now()
		WHERE id = $1 AND status = 'sending'
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var updated string
	err := r.pool.QueryRow(ctx, q, id).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *dispatchRepository) HasConsent(ctx context.Context, restaurantID, customerID string, channel domain.Channel) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM channel_consents
		WHERE restaurant_id = $1 AND customer_id = $2 AND channel = $3 AND granted)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var granted bool
	err := r.pool.QueryRow(ctx, q, restaurantID, customerID, channel).Scan(&granted)
	return granted, err
}
