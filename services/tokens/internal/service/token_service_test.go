package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/qr"
	"github.com/opskap1/temnos/services/tokens/internal/domain"
)

// ---------- Mocks ----------

type mockTokenRepo struct {
	mu         sync.Mutex
	nextID     int
	records    map[string]*domain.TokenRecord // id -> record
	findCalls  int
	createErr  error
	consumeErr error
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{records: make(map[string]*domain.TokenRecord)}
}

func (m *mockTokenRepo) Create(_ context.Context, customerID, restaurantID, token string, rewardID *string, expiresAt time.Time) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	m.nextID++
	rec := &domain.TokenRecord{
		ID:           fmt.Sprintf("tok-%d", m.nextID),
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Token:        token,
		RewardID:     rewardID,
		ExpiresAt:    expiresAt,
		Used:         false,
		CreatedAt:    time.Now(),
	}
	m.records[rec.ID] = rec

	cp := *rec
	return &cp, nil
}

func (m *mockTokenRepo) FindActive(_ context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	for _, rec := range m.records {
		if rec.Token == token && rec.CustomerID == customerID && rec.RestaurantID == restaurantID && !rec.Used {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTokenRepo) Find(_ context.Context, token, customerID, restaurantID string) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.Token == token && rec.CustomerID == customerID && rec.RestaurantID == restaurantID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTokenRepo) Consume(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeErr != nil {
		return false, m.consumeErr
	}

	rec, ok := m.records[id]
	if !ok || rec.Used {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

func (m *mockTokenRepo) DeleteExpired(_ context.Context, restaurantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	now := time.Now()
	for id, rec := range m.records {
		if rec.RestaurantID == restaurantID && rec.ExpiresAt.Before(now) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockTokenRepo) SweepExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	now := time.Now()
	for id, rec := range m.records {
		if rec.ExpiresAt.Before(now) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// expire rewinds a stored record's expiry for testing.
func (m *mockTokenRepo) expire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].ExpiresAt = time.Now().Add(-time.Minute)
}

func (m *mockTokenRepo) record(id string) domain.TokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *mockTokenRepo) onlyID(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) != 1 {
		t.Fatalf("expected exactly one record, have %d", len(m.records))
	}
	for id := range m.records {
		return id
	}
	return ""
}

// ---------- Test setup ----------

func testConfig() *config.Config {
	return &config.Config{
		Tokens: config.TokensConfig{
			CustomerTTL:   5 * time.Minute,
			RedemptionTTL: 10 * time.Minute,
		},
	}
}

func newTestService() (TokenService, *mockTokenRepo) {
	repo := newMockTokenRepo()
	return NewTokenService(repo, nil, testConfig()), repo
}

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ---------- Tests ----------

func TestIssueCustomerToken_PayloadAndRecord(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	payload, err := qr.Decode(encoded)
	if err != nil {
		t.Fatalf("returned payload does not decode: %v", err)
	}

	if payload.CustomerID != "cust-1" || payload.RestaurantID != "rest-1" {
		t.Fatalf("wrong payload identity: %+v", payload)
	}
	if !hexToken.MatchString(payload.Token) {
		t.Fatalf("token is not 64 lowercase hex chars: %q", payload.Token)
	}
	if payload.Timestamp == 0 {
		t.Fatal("payload timestamp not set")
	}
	if payload.Type != "" || payload.RewardID != "" {
		t.Fatalf("customer payload must not carry redemption fields: %+v", payload)
	}

	rec := repo.record(repo.onlyID(t))
	if rec.Used {
		t.Fatal("fresh record must start unused")
	}
	if rec.RewardID != nil {
		t.Fatal("customer record must not carry a reward")
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl < 4*time.Minute || ttl > 5*time.Minute {
		t.Fatalf("expected ~5m expiry, got %v", ttl)
	}
}

func TestIssueRedemptionToken_PayloadAndRecord(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueRedemptionToken(context.Background(), "rest-1", "cust-1", "reward-9", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	payload, err := qr.Decode(encoded)
	if err != nil {
		t.Fatalf("returned payload does not decode: %v", err)
	}

	if !payload.IsRedemption() || payload.RewardID != "reward-9" {
		t.Fatalf("expected redemption payload, got %+v", payload)
	}

	rec := repo.record(repo.onlyID(t))
	if rec.RewardID == nil || *rec.RewardID != "reward-9" {
		t.Fatalf("record missing reward: %+v", rec)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Fatalf("expected ~10m expiry, got %v", ttl)
	}
}

func TestIssue_InsertFailurePropagates(t *testing.T) {
	repo := newMockTokenRepo()
	repo.createErr = errors.New("connection refused")
	svc := NewTokenService(repo, nil, testConfig())

	if _, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0); err == nil {
		t.Fatal("expected error when insert fails")
	}
}

func TestVerifyAndConsume_SucceedsExactlyOnce(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	first := svc.VerifyAndConsume(context.Background(), encoded)
	if !first.Valid {
		t.Fatalf("first scan should succeed, got error %q", first.Error)
	}
	if first.Payload == nil || first.Payload.CustomerID != "cust-1" {
		t.Fatalf("success must return the decoded payload, got %+v", first.Payload)
	}

	if rec := repo.record(repo.onlyID(t)); !rec.Used {
		t.Fatal("record not marked used after successful scan")
	}

	second := svc.VerifyAndConsume(context.Background(), encoded)
	if second.Valid {
		t.Fatal("second scan of the same payload must fail")
	}
	if second.Error != domain.MsgNotFoundOrUsed {
		t.Fatalf("expected %q, got %q", domain.MsgNotFoundOrUsed, second.Error)
	}
}

func TestVerifyAndConsume_ExpiredLeftUnconsumed(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	id := repo.onlyID(t)
	repo.expire(id)

	res := svc.VerifyAndConsume(context.Background(), encoded)
	if res.Valid || res.Error != domain.MsgExpired {
		t.Fatalf("expected %q, got valid=%v error=%q", domain.MsgExpired, res.Valid, res.Error)
	}

	if rec := repo.record(id); rec.Used {
		t.Fatal("expired token must not be consumed by a failed scan")
	}
}

func TestVerifyAndConsume_TenantMismatch(t *testing.T) {
	svc, _ := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Re-encode the same token under a different tenant. The compound lookup
	// must reject it with the non-specific message.
	payload, _ := qr.Decode(encoded)
	payload.RestaurantID = "rest-other"
	forged, _ := payload.Encode()

	res := svc.VerifyAndConsume(context.Background(), forged)
	if res.Valid || res.Error != domain.MsgNotFoundOrUsed {
		t.Fatalf("expected %q, got valid=%v error=%q", domain.MsgNotFoundOrUsed, res.Valid, res.Error)
	}
}

func TestVerifyAndConsume_MalformedInput(t *testing.T) {
	svc, repo := newTestService()

	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "not-base64!!"},
		{"base64 of junk", base64.StdEncoding.EncodeToString([]byte("{{{"))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.VerifyAndConsume(context.Background(), tt.encoded)
			if res.Valid || res.Error != domain.MsgInvalidFormat {
				t.Fatalf("expected %q, got valid=%v error=%q", domain.MsgInvalidFormat, res.Valid, res.Error)
			}
		})
	}

	if repo.findCalls != 0 {
		t.Fatalf("malformed input must not reach the store, saw %d lookups", repo.findCalls)
	}
}

func TestVerifyAndConsume_MissingFields(t *testing.T) {
	svc, _ := newTestService()

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"customerId":"cust-1","timestamp":1}`))

	res := svc.VerifyAndConsume(context.Background(), encoded)
	if res.Valid || res.Error != domain.MsgMissingFields {
		t.Fatalf("expected %q, got valid=%v error=%q", domain.MsgMissingFields, res.Valid, res.Error)
	}
}

func TestVerifyAndConsume_UpdateFailure(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	repo.consumeErr = errors.New("write timeout")

	res := svc.VerifyAndConsume(context.Background(), encoded)
	if res.Valid || res.Error != domain.MsgProcessFailed {
		t.Fatalf("expected %q, got valid=%v error=%q", domain.MsgProcessFailed, res.Valid, res.Error)
	}
}

func TestVerifyAndConsume_ConcurrentScansSingleWinner(t *testing.T) {
	svc, _ := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	const scanners = 8
	results := make(chan *domain.VerifyResult, scanners)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < scanners; i++ {
		go func() {
			start.Wait()
			results <- svc.VerifyAndConsume(context.Background(), encoded)
		}()
	}
	start.Done()

	var wins, losses int
	for i := 0; i < scanners; i++ {
		res := <-results
		if res.Valid {
			wins++
		} else {
			losses++
			if res.Error != domain.MsgNotFoundOrUsed {
				t.Fatalf("losing scan reported %q, expected %q", res.Error, domain.MsgNotFoundOrUsed)
			}
		}
	}

	if wins != 1 {
		t.Fatalf("expected exactly one winning scan, got %d (losses %d)", wins, losses)
	}
}

func TestTokenInfo_DoesNotConsumeOrCheckExpiry(t *testing.T) {
	svc, repo := newTestService()

	encoded, err := svc.IssueCustomerToken(context.Background(), "rest-1", "cust-1", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	id := repo.onlyID(t)
	repo.expire(id)

	rec, err := svc.TokenInfo(context.Background(), encoded)
	if err != nil {
		t.Fatalf("info lookup failed: %v", err)
	}
	if rec == nil {
		t.Fatal("info lookup must find expired records")
	}
	if repo.record(id).Used {
		t.Fatal("info lookup must not consume")
	}

	if rec, _ := svc.TokenInfo(context.Background(), "garbage"); rec != nil {
		t.Fatal("undecodable payload should yield nil, not an error")
	}
}

func TestCleanupExpired_TenantScoped(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if _, err := svc.IssueCustomerToken(ctx, "rest-1", "cust-1", 0); err != nil {
		t.Fatal(err)
	}
	encoded, err := svc.IssueCustomerToken(ctx, "rest-1", "cust-2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.IssueCustomerToken(ctx, "rest-2", "cust-3", 0); err != nil {
		t.Fatal(err)
	}

	// Expire everything; consume one of rest-1's tokens first so the sweep
	// covers used and unused records alike.
	if res := svc.VerifyAndConsume(ctx, encoded); !res.Valid {
		t.Fatalf("setup scan failed: %q", res.Error)
	}
	repo.mu.Lock()
	for _, rec := range repo.records {
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	}
	repo.mu.Unlock()

	deleted, err := svc.CleanupExpired(ctx, "rest-1")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deletions for rest-1, got %d", deleted)
	}

	repo.mu.Lock()
	remaining := len(repo.records)
	repo.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("other tenants' records must survive, %d left", remaining)
	}
}
