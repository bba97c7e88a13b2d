package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Owner is a restaurant operator account. Staff accounts share the table and
// differ only in role.
type Owner struct {
	ID           int64     `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Role         string    `json:"role"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	RestaurantName string `json:"restaurant_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresIn    int64      `json:"expires_in"`
	Owner        *OwnerInfo `json:"owner"`
}

type OwnerInfo struct {
	ID           int64  `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	IsVerified   bool   `json:"is_verified"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PairingCode is the short-lived numeric code an owner reads off the
// dashboard and types into a kiosk to bind it to the restaurant.
type PairingCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PairStationRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Code         string `json:"code"`
}

type PairStationResponse struct {
	StationToken string `json:"station_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// MaxPairingAttempts caps wrong-code guesses per issued code.
const MaxPairingAttempts = 5

func (r *RegisterRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.RestaurantName == "" {
		return fmt.Errorf("restaurant_name is required")
	}
	return nil
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	r.RestaurantName = strings.TrimSpace(r.RestaurantName)
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (o *Owner) ToOwnerInfo() *OwnerInfo {
	return &OwnerInfo{
		ID:           o.ID,
		RestaurantID: o.RestaurantID,
		Email:        o.Email,
		Name:         o.Name,
		Role:         o.Role,
		IsVerified:   o.IsVerified,
	}
}
