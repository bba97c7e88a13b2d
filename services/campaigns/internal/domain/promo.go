package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

type PromoCode struct {
	ID           string       `json:"id"`
	RestaurantID string       `json:"restaurant_id"`
	CampaignID   *string      `json:"campaign_id,omitempty"`
	Code         string       `json:"code"`
	DiscountType DiscountType `json:"discount_type"`
	// DiscountValue is a percentage for percent codes (0-100) and a currency
	// amount for fixed codes.
	DiscountValue float64 `json:"discount_value"`
	MinSpend      float64 `json:"min_spend,omitempty"`
	// MaxRedemptions of 0 means unlimited; same for PerCustomerLimit.
	MaxRedemptions   int        `json:"max_redemptions,omitempty"`
	PerCustomerLimit int        `json:"per_customer_limit,omitempty"`
	Redemptions      int        `json:"redemptions"`
	ValidFrom        *time.Time `json:"valid_from,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CreatePromoRequest struct {
	CampaignID       *string      `json:"campaign_id,omitempty"`
	Prefix           string       `json:"prefix,omitempty"`
	DiscountType     DiscountType `json:"discount_type"`
	DiscountValue    float64      `json:"discount_value"`
	MinSpend         float64      `json:"min_spend,omitempty"`
	MaxRedemptions   int          `json:"max_redemptions,omitempty"`
	PerCustomerLimit int          `json:"per_customer_limit,omitempty"`
	ValidFrom        *time.Time   `json:"valid_from,omitempty"`
	ValidUntil       *time.Time   `json:"valid_until,omitempty"`
}

type RedeemPromoRequest struct {
	Code        string  `json:"code"`
	CustomerID  string  `json:"customer_id"`
	OrderAmount float64 `json:"order_amount"`
}

type RedeemPromoResult struct {
	PromoCodeID string  `json:"promo_code_id"`
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"final_amount"`
}

func (r *CreatePromoRequest) Validate() error {
	if r.DiscountType != DiscountPercent && r.DiscountType != DiscountFixed {
		return fmt.Errorf("invalid discount type: %s", r.DiscountType)
	}
	if r.DiscountValue <= 0 {
		return fmt.Errorf("discount_value must be positive")
	}
	if r.DiscountType == DiscountPercent && r.DiscountValue > 100 {
		return fmt.Errorf("percent discount cannot exceed 100")
	}
	if r.MinSpend < 0 || r.MaxRedemptions < 0 || r.PerCustomerLimit < 0 {
		return fmt.Errorf("limits cannot be negative")
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidUntil.After(*r.ValidFrom) {
		return fmt.Errorf("valid_until must be after valid_from")
	}
	return nil
}

// Discount returns the discount a code grants on an order amount. Fixed
// discounts never exceed the amount itself.
func (p *PromoCode) Discount(amount float64) float64 {
	switch p.DiscountType {
	case DiscountPercent:
		return amount * p.DiscountValue / 100
	case DiscountFixed:
		if p.DiscountValue > amount {
			return amount
		}
		return p.DiscountValue
	}
	return 0
}

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeSuffixLen = 8

// GeneratePromoCode builds PREFIX-XXXXXXXX with a random suffix.
func GeneratePromoCode(prefix string) (string, error) {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return string(buf), nil
	}
	return prefix + "-" + string(buf), nil
}
