package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOwner   = "owner"
	RoleStaff   = "staff"
	RoleStation = "station"
	RoleAdmin   = "admin"
)

type Claims struct {
	Sub          int64  `json:"sub"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Scope        string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func NewAccessToken(sub int64, email, role, restaurantID, scope, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:          sub,
		Email:        email,
		Role:         role,
		RestaurantID: restaurantID,
		Scope:        scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{"temnos-api"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// NewStationToken mints the long-lived credential a paired scan terminal
// presents on every verify call. It carries no user identity, only the tenant.
func NewStationToken(restaurantID, secret string, ttl time.Duration) (string, error) {
	return NewAccessToken(0, "", RoleStation, restaurantID, "tokens:verify", secret, ttl)
}
