package service

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/services/auth/internal/domain"
)

type mockOwnerRepo struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*domain.Owner
	byID    map[int64]*domain.Owner
}

func newMockOwnerRepo() *mockOwnerRepo {
	return &mockOwnerRepo{
		nextID:  1,
		byEmail: make(map[string]*domain.Owner),
		byID:    make(map[int64]*domain.Owner),
	}
}

func (m *mockOwnerRepo) CreateWithRestaurant(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := &domain.Owner{
		ID:           m.nextID,
		RestaurantID: "rest-mock",
		Role:         auth.RoleOwner,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.nextID++
	m.byEmail[o.Email] = o
	m.byID[o.ID] = o
	return o, nil
}

func (m *mockOwnerRepo) FindByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[email], nil
}

func (m *mockOwnerRepo) FindByID(ctx context.Context, id int64) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *mockOwnerRepo) MarkVerified(ctx context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[ownerID]; ok {
		o.IsVerified = true
	}
	return nil
}

type pairingRecord struct {
	hash      string
	expiresAt time.Time
	usedAt    *time.Time
	attempts  int
}

type mockVerifyRepo struct {
	mu         sync.Mutex
	emailToken map[string]int64 // token -> owner id, deleted on consume
	pairing    map[string]*pairingRecord
}

func newMockVerifyRepo() *mockVerifyRepo {
	return &mockVerifyRepo{
		emailToken: make(map[string]int64),
		pairing:    make(map[string]*pairingRecord),
	}
}

func (m *mockVerifyRepo) CreateEmailVerification(ctx context.Context, ownerID int64, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailToken[token] = ownerID
	return nil
}

func (m *mockVerifyRepo) ConsumeEmailVerification(ctx context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.emailToken[token]
	delete(m.emailToken, token)
	return id, nil
}

func (m *mockVerifyRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockVerifyRepo) CreatePairingCode(ctx context.Context, restaurantID, codeHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairing[restaurantID] = &pairingRecord{hash: codeHash, expiresAt: expiresAt}
	return nil
}

func (m *mockVerifyRepo) CheckPairingCode(ctx context.Context, restaurantID, code string) (bool, error) {
	m.mu.Lock()
	rec, ok := m.pairing[restaurantID]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	hash := rec.hash
	rejected := rec.usedAt != nil || time.Now().After(rec.expiresAt) || rec.attempts >= domain.MaxPairingAttempts
	m.mu.Unlock()

	if rejected {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		m.mu.Lock()
		rec.attempts++
		m.mu.Unlock()
		return false, nil
	}

	// Conditional consume, after the lock was dropped for the hash compare.
	// Only one caller may flip usedAt.
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.usedAt != nil {
		return false, nil
	}
	now := time.Now()
	rec.usedAt = &now
	return true, nil
}

type mockMailer struct {
	mu            sync.Mutex
	verifications int
	lastToken     string
}

func (m *mockMailer) SendVerificationEmail(toEmail, toName, verifyURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications++
	m.lastToken = token
	return nil
}

func (m *mockMailer) SendPairingCodeEmail(toEmail, restaurantName, code string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret",
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      7 * 24 * time.Hour,
			StationTokenTTL:      30 * 24 * time.Hour,
			EmailVerificationTTL: 2 * time.Hour,
			PairingCodeTTL:       15 * time.Minute,
		},
		Email: config.EmailConfig{DashboardURL: "http://localhost:5173"},
	}
}

func newTestService() (AuthService, *mockOwnerRepo, *mockVerifyRepo, *mockMailer) {
	owners := newMockOwnerRepo()
	verify := newMockVerifyRepo()
	mail := &mockMailer{}
	svc := NewAuthService(owners, verify, mail, nil, testConfig())
	return svc, owners, verify, mail
}

func register(t *testing.T, svc AuthService) *domain.Owner {
	t.Helper()
	owner, _, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:          "owner@bistro.test",
		Password:       "correct-horse",
		Name:           "Pat",
		RestaurantName: "Bistro",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return owner
}

func TestRegisterSendsVerification(t *testing.T) {
	svc, _, _, mail := newTestService()

	owner := register(t, svc)

	if owner.IsVerified {
		t.Error("new accounts must start unverified")
	}
	if owner.PasswordHash == "correct-horse" || owner.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	mail.mu.Lock()
	defer mail.mu.Unlock()
	if mail.verifications != 1 {
		t.Errorf("expected one verification email, got %d", mail.verifications)
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	svc, _, _, _ := newTestService()
	register(t, svc)

	_, _, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:          "owner@bistro.test",
		Password:       "another-pass",
		Name:           "Sam",
		RestaurantName: "Other Bistro",
	})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, _, _, mail := newTestService()
	register(t, svc)

	ctx := context.Background()
	req := &domain.LoginRequest{Email: "owner@bistro.test", Password: "correct-horse"}

	if _, err := svc.Login(ctx, req); err == nil {
		t.Fatal("expected login to fail before verification")
	}

	mail.mu.Lock()
	token := mail.lastToken
	mail.mu.Unlock()

	if _, err := svc.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	// Second consume of the same token must fail
	if _, err := svc.VerifyEmail(ctx, token); err == nil {
		t.Error("expected verification token to be single use")
	}

	resp, err := svc.Login(ctx, req)
	if err != nil {
		t.Fatalf("Login after verification: %v", err)
	}

	claims, err := auth.Parse(resp.AccessToken, "test-secret")
	if err != nil {
		t.Fatalf("Parse access token: %v", err)
	}
	if claims.Role != auth.RoleOwner {
		t.Errorf("expected owner role, got %s", claims.Role)
	}
	if claims.RestaurantID != "rest-mock" {
		t.Errorf("expected restaurant binding, got %q", claims.RestaurantID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, owners, _, _ := newTestService()
	owner := register(t, svc)
	owners.MarkVerified(context.Background(), owner.ID)

	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "owner@bistro.test",
		Password: "wrong-horse",
	})
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestPairStation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	code, err := svc.CreatePairingCode(ctx, 1, "rest-mock")
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code.Code) {
		t.Fatalf("expected a 6-digit code, got %q", code.Code)
	}

	resp, err := svc.PairStation(ctx, &domain.PairStationRequest{
		RestaurantID: "rest-mock",
		Code:         code.Code,
	})
	if err != nil {
		t.Fatalf("PairStation: %v", err)
	}

	claims, err := auth.Parse(resp.StationToken, "test-secret")
	if err != nil {
		t.Fatalf("Parse station token: %v", err)
	}
	if claims.Role != auth.RoleStation {
		t.Errorf("expected station role, got %s", claims.Role)
	}
	if claims.RestaurantID != "rest-mock" {
		t.Errorf("expected restaurant binding, got %q", claims.RestaurantID)
	}
	if claims.Scope != "tokens:verify" {
		t.Errorf("expected tokens:verify scope, got %q", claims.Scope)
	}

	// The code is single use
	if _, err := svc.PairStation(ctx, &domain.PairStationRequest{
		RestaurantID: "rest-mock",
		Code:         code.Code,
	}); err == nil {
		t.Error("expected a consumed pairing code to be rejected")
	}
}

func TestPairStationConcurrentExchange(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	code, err := svc.CreatePairingCode(ctx, 1, "rest-mock")
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}

	const terminals = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < terminals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.PairStation(ctx, &domain.PairStationRequest{
				RestaurantID: "rest-mock",
				Code:         code.Code,
			})
			if err != nil {
				return
			}
			if _, err := auth.Parse(resp.StationToken, "test-secret"); err != nil {
				t.Errorf("Parse station token: %v", err)
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one terminal to pair, got %d", successes)
	}
}

func TestPairStationAttemptCap(t *testing.T) {
	svc, _, verify, _ := newTestService()
	ctx := context.Background()

	code, err := svc.CreatePairingCode(ctx, 1, "rest-mock")
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}

	for i := 0; i < domain.MaxPairingAttempts; i++ {
		if _, err := svc.PairStation(ctx, &domain.PairStationRequest{
			RestaurantID: "rest-mock",
			Code:         "000000",
		}); err == nil {
			t.Fatal("expected wrong code to be rejected")
		}
	}

	verify.mu.Lock()
	attempts := verify.pairing["rest-mock"].attempts
	verify.mu.Unlock()
	if attempts != domain.MaxPairingAttempts {
		t.Fatalf("expected %d recorded attempts, got %d", domain.MaxPairingAttempts, attempts)
	}

	// Even the right code is refused once the cap is hit
	if _, err := svc.PairStation(ctx, &domain.PairStationRequest{
		RestaurantID: "rest-mock",
		Code:         code.Code,
	}); err == nil {
		t.Error("expected the correct code to be refused after too many attempts")
	}
}

func TestPairStationExpiredCode(t *testing.T) {
	svc, _, verify, _ := newTestService()
	ctx := context.Background()

	code, err := svc.CreatePairingCode(ctx, 1, "rest-mock")
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}

	verify.mu.Lock()
	verify.pairing["rest-mock"].expiresAt = time.Now().Add(-time.Minute)
	verify.mu.Unlock()

	if _, err := svc.PairStation(ctx, &domain.PairStationRequest{
		RestaurantID: "rest-mock",
		Code:         code.Code,
	}); err == nil {
		t.Error("expected an expired pairing code to be rejected")
	}
}
