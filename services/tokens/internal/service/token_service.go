package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/pkg/qr"
	"github.com/opskap1/temnos/services/tokens/internal/domain"
	"github.com/opskap1/temnos/services/tokens/internal/repository"
)

type TokenService interface {
	// IssueCustomerToken mints a customer-identification token and returns its
	// encoded QR payload. ttl <= 0 falls back to the configured default (5m).
	IssueCustomerToken(ctx context.Context, restaurantID, customerID string, ttl time.Duration) (string, error)

	// IssueRedemptionToken mints a reward-redemption token (default ttl 10m).
	IssueRedemptionToken(ctx context.Context, restaurantID, customerID, rewardID string, ttl time.Duration) (string, error)

	// VerifyAndConsume validates a scanned payload and marks the backing
	// record used. Expected failures come back in the result, never as a
	// panic or error: the scanning loop must always get a displayable verdict.
	VerifyAndConsume(ctx context.Context, encodedPayload string) *domain.VerifyResult

	// TokenInfo is a read-only diagnostic lookup. It does not consume and
	// does not check expiry; never use it for access control.
	TokenInfo(ctx context.Context, encodedPayload string) (*domain.TokenRecord, error)

	// CleanupExpired removes every stale record for one tenant, used or not.
	CleanupExpired(ctx context.Context, restaurantID string) (int64, error)
}

type tokenService struct {
	repo     repository.TokenRepository
	eventBus events.Publisher
	config   *config.Config
}

func NewTokenService(repo repository.TokenRepository, eventBus events.Publisher, cfg *config.Config) TokenService {
	return &tokenService{
		repo:     repo,
		eventBus: eventBus,
		config:   cfg,
	}
}

func (s *tokenService) IssueCustomerToken(ctx context.Context, restaurantID, customerID string, ttl time.Duration) (string, error) {
	if restaurantID == "" || customerID == "" {
		return "", fmt.Errorf("restaurant and customer are required")
	}
	if ttl <= 0 {
		ttl = s.config.Tokens.CustomerTTL
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	rec, err := s.repo.Create(ctx, customerID, restaurantID, token, nil, time.Now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to store QR token: %w", err)
	}

	s.publishIssued(ctx, rec)

	return qr.NewCustomerPayload(restaurantID, customerID, token).Encode()
}

func (s *tokenService) IssueRedemptionToken(ctx context.Context, restaurantID, customerID, rewardID string, ttl time.Duration) (string, error) {
	if restaurantID == "" || customerID == "" || rewardID == "" {
		return "", fmt.Errorf("restaurant, customer and reward are required")
	}
	if ttl <= 0 {
		ttl = s.config.Tokens.RedemptionTTL
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	rec, err := s.repo.Create(ctx, customerID, restaurantID, token, &rewardID, time.Now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to store redemption QR token: %w", err)
	}

	s.publishIssued(ctx, rec)

	return qr.NewRedemptionPayload(restaurantID, customerID, rewardID, token).Encode()
}

func (s *tokenService) VerifyAndConsume(ctx context.Context, encodedPayload string) *domain.VerifyResult {
	payload, err := qr.Decode(encodedPayload)
	if err != nil {
		return &domain.VerifyResult{Valid: false, Error: domain.MsgInvalidFormat}
	}

	if payload.MissingRequired() {
		return &domain.VerifyResult{Valid: false, Error: domain.MsgMissingFields}
	}

	rec, err := s.repo.FindActive(ctx, payload.Token, payload.CustomerID, payload.RestaurantID)
	if err != nil {
		logger.ErrorContext(ctx, "Token lookup failed", "error", err)
		return &domain.VerifyResult{Valid: false, Error: domain.MsgVerifyFailed}
	}
	if rec == nil {
		// Never existed, wrong owner, wrong tenant, or already consumed.
		return &domain.VerifyResult{Valid: false, Error: domain.MsgNotFoundOrUsed}
	}

	if rec.Expired(time.Now()) {
		// Left unconsumed; the sweep collects it.
		return &domain.VerifyResult{Valid: false, Error: domain.MsgExpired}
	}

	consumed, err := s.repo.Consume(ctx, rec.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark token as used", "error", err, "token_id", rec.ID)
		return &domain.VerifyResult{Valid: false, Error: domain.MsgProcessFailed}
	}
	if !consumed {
		// A concurrent scan won the used=false race.
		return &domain.VerifyResult{Valid: false, Error: domain.MsgNotFoundOrUsed}
	}

	s.publishConsumed(ctx, rec)

	return &domain.VerifyResult{Valid: true, Payload: payload}
}

func (s *tokenService) TokenInfo(ctx context.Context, encodedPayload string) (*domain.TokenRecord, error) {
	payload, err := qr.Decode(encodedPayload)
	if err != nil {
		return nil, nil
	}
	return s.repo.Find(ctx, payload.Token, payload.CustomerID, payload.RestaurantID)
}

func (s *tokenService) CleanupExpired(ctx context.Context, restaurantID string) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, restaurantID)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	if deleted > 0 {
		logger.InfoContext(ctx, "Swept expired QR tokens", "restaurant_id", restaurantID, "deleted", deleted)
	}
	return deleted, nil
}

// generateToken draws 32 bytes from the platform CSPRNG and hex-encodes them:
// 64 lowercase characters, 256 bits of entropy. math/rand is not an option
// here, the token is the entire capability.
func generateToken() (string, error) {
	buf := make([]byte, domain.TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *tokenService) publishIssued(ctx context.Context, rec *domain.TokenRecord) {
	if s.eventBus == nil {
		return
	}
	evt := events.TokenIssuedEvent{
		TokenID:      rec.ID,
		RestaurantID: rec.RestaurantID,
		CustomerID:   rec.CustomerID,
		ExpiresAt:    rec.ExpiresAt,
		IssuedAt:     rec.CreatedAt,
	}
	if rec.RewardID != nil {
		evt.RewardID = *rec.RewardID
	}
	if err := s.eventBus.Publish(ctx, events.TokenIssued, evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish token.issued", "error", err)
	}
}

func (s *tokenService) publishConsumed(ctx context.Context, rec *domain.TokenRecord) {
	if s.eventBus == nil {
		return
	}
	evt := events.TokenConsumedEvent{
		TokenID:      rec.ID,
		RestaurantID: rec.RestaurantID,
		CustomerID:   rec.CustomerID,
		ConsumedAt:   time.Now(),
	}
	if rec.RewardID != nil {
		evt.RewardID = *rec.RewardID
	}
	if err := s.eventBus.Publish(ctx, events.TokenConsumed, evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish token.consumed", "error", err)
	}
}
