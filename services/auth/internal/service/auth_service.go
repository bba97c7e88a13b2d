package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/auth/internal/domain"
	"github.com/opskap1/temnos/services/auth/internal/mailer"
	"github.com/opskap1/temnos/services/auth/internal/repository"
)

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Owner, string, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	VerifyEmail(ctx context.Context, token string) (*domain.Owner, error)
	ResendVerification(ctx context.Context, email string) error
	RefreshToken(ctx context.Context, refreshToken string) (*domain.LoginResponse, error)
	CreatePairingCode(ctx context.Context, ownerID int64, restaurantID string) (*domain.PairingCode, error)
	PairStation(ctx context.Context, req *domain.PairStationRequest) (*domain.PairStationResponse, error)
}

type authService struct {
	ownerRepo  repository.OwnerRepository
	verifyRepo repository.VerifyRepository
	mailer     mailer.Service
	eventBus   events.EventBus
	config     *config.Config
}

func NewAuthService(
	ownerRepo repository.OwnerRepository,
	verifyRepo repository.VerifyRepository,
	mailer mailer.Service,
	eventBus events.EventBus,
	config *config.Config,
) AuthService {
	return &authService{
		ownerRepo:  ownerRepo,
		verifyRepo: verifyRepo,
		mailer:     mailer,
		eventBus:   eventBus,
		config:     config,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Owner, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("validation failed: %w", err)
	}

	existing, err := s.ownerRepo.FindByEmail(ctx, req.Email)
	if err != nil && err != pgx.ErrNoRows {
		return nil, "", fmt.Errorf("failed to check existing owner: %w", err)
	}
	if existing != nil {
		return nil, "", fmt.Errorf("an account with this email already exists")
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	owner, err := s.ownerRepo.CreateWithRestaurant(ctx, req, passwordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create owner: %w", err)
	}

	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Auth.EmailVerificationTTL)

	if err := s.verifyRepo.CreateEmailVerification(ctx, owner.ID, verifyToken, expiresAt); err != nil {
		logger.ErrorContext(ctx, "Failed to create email verification token", "error", err, "owner_id", owner.ID)
		return nil, "", fmt.Errorf("failed to create verification token: %w", err)
	}

	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(owner.Email, owner.Name, verifyURL, verifyToken); err != nil {
		// Registration stands; the owner can request a resend.
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "owner_id", owner.ID)
	}

	return owner, verifyURL, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	owner, err := s.ownerRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if !owner.IsVerified {
		return nil, fmt.Errorf("email not verified")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, owner.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("invalid credentials")
	}

	return s.buildLoginResponse(owner, "")
}

func (s *authService) VerifyEmail(ctx context.Context, token string) (*domain.Owner, error) {
	ownerID, err := s.verifyRepo.ConsumeEmailVerification(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	if ownerID == 0 {
		return nil, fmt.Errorf("invalid or expired verification token")
	}

	if err := s.ownerRepo.MarkVerified(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("failed to mark owner as verified: %w", err)
	}

	owner, err := s.ownerRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get verified owner: %w", err)
	}
	return owner, nil
}

func (s *authService) ResendVerification(ctx context.Context, email string) error {
	owner, err := s.ownerRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		// Don't reveal whether the account exists
		return nil
	}

	if owner.IsVerified {
		return fmt.Errorf("account is already verified")
	}

	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Auth.EmailVerificationTTL)

	if err := s.verifyRepo.CreateEmailVerification(ctx, owner.ID, verifyToken, expiresAt); err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(owner.Email, owner.Name, verifyURL, verifyToken); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "owner_id", owner.ID)
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	claims, err := auth.Parse(refreshToken, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Role != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}

	owner, err := s.ownerRepo.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("owner not found")
	}

	return s.buildLoginResponse(owner, refreshToken)
}

// CreatePairingCode mints a short-lived numeric code the owner enters on a
// kiosk. Only the bcrypt hash is stored; the plaintext is returned once.
func (s *authService) CreatePairingCode(ctx context.Context, ownerID int64, restaurantID string) (*domain.PairingCode, error) {
	code, err := generatePairingCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pairing code: %w", err)
	}

	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pairing code: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Auth.PairingCodeTTL)
	if err := s.verifyRepo.CreatePairingCode(ctx, restaurantID, string(codeHash), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store pairing code: %w", err)
	}

	logger.InfoContext(ctx, "Station pairing code issued", "restaurant_id", restaurantID, "owner_id", ownerID)

	return &domain.PairingCode{Code: code, ExpiresAt: expiresAt}, nil
}

func (s *authService) PairStation(ctx context.Context, req *domain.PairStationRequest) (*domain.PairStationResponse, error) {
	if req.RestaurantID == "" || req.Code == "" {
		return nil, fmt.Errorf("restaurant_id and code are required")
	}

	ok, err := s.verifyRepo.CheckPairingCode(ctx, req.RestaurantID, req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to check pairing code: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("invalid or expired pairing code")
	}

	stationToken, err := auth.NewStationToken(req.RestaurantID, s.config.Auth.JWTSecret, s.config.Auth.StationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create station token: %w", err)
	}

	logger.InfoContext(ctx, "Station paired", "restaurant_id", req.RestaurantID)

	return &domain.PairStationResponse{
		StationToken: stationToken,
		ExpiresIn:    int64(s.config.Auth.StationTokenTTL.Seconds()),
	}, nil
}

func (s *authService) buildLoginResponse(owner *domain.Owner, refreshToken string) (*domain.LoginResponse, error) {
	scope := generateScope(owner.Role)
	accessToken, err := auth.NewAccessToken(
		owner.ID,
		owner.Email,
		owner.Role,
		owner.RestaurantID,
		scope,
		s.config.Auth.JWTSecret,
		s.config.Auth.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	if refreshToken == "" {
		refreshToken, err = auth.NewAccessToken(
			owner.ID,
			owner.Email,
			"refresh",
			owner.RestaurantID,
			"refresh",
			s.config.Auth.JWTSecret,
			s.config.Auth.RefreshTokenTTL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create refresh token: %w", err)
		}
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		Owner:        owner.ToOwnerInfo(),
	}, nil
}

func generateScope(role string) string {
	switch role {
	case auth.RoleAdmin:
		return "admin:read admin:write restaurants:read restaurants:write"
	case auth.RoleOwner:
		return "restaurants:read restaurants:write tokens:issue tokens:verify campaigns:read campaigns:write orders:read orders:write"
	case auth.RoleStaff:
		return "tokens:issue tokens:verify campaigns:read"
	default:
		return ""
	}
}

func generatePairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (s *authService) buildVerificationURL(token string) string {
	return fmt.Sprintf("%s/verify-email?token=%s", s.config.Email.DashboardURL, token)
}
