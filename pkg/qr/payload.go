// Package qr implements the wire encoding of QR capability payloads. The
// encoded form is base64(JSON) and must stay bit-compatible across issuers
// and scanners, so the field names below are frozen.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// TypeRedemption marks a payload minted for redeeming a specific reward.
// Customer-identification payloads carry no type at all.
const TypeRedemption = "redemption"

var ErrMalformed = errors.New("malformed QR payload")

// Payload is the decoded content of a scanned QR code. It is transport only:
// the token field is the sole authority, the timestamp is informational and
// expiry lives server-side on the token record.
type Payload struct {
	CustomerID   string `json:"customerId"`
	RestaurantID string `json:"restaurantId"`
	Timestamp    int64  `json:"timestamp"` // epoch ms, client clock
	Token        string `json:"token"`
	Type         string `json:"type,omitempty"`
	RewardID     string `json:"rewardId,omitempty"`
}

func NewCustomerPayload(restaurantID, customerID, token string) *Payload {
	return &Payload{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Timestamp:    time.Now().UnixMilli(),
		Token:        token,
	}
}

func NewRedemptionPayload(restaurantID, customerID, rewardID, token string) *Payload {
	return &Payload{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Timestamp:    time.Now().UnixMilli(),
		Token:        token,
		Type:         TypeRedemption,
		RewardID:     rewardID,
	}
}

// Encode serializes the payload into the literal QR code contents.
func (p *Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode parses QR code contents. Any base64 or JSON failure is reported as
// ErrMalformed; the caller should not distinguish the two.
func Decode(encoded string) (*Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformed
	}
	return &p, nil
}

// MissingRequired reports whether any of the fields every payload must carry
// is absent.
func (p *Payload) MissingRequired() bool {
	return p.CustomerID == "" || p.RestaurantID == "" || p.Token == ""
}

// IsRedemption reports whether the payload was minted for a reward redemption.
func (p *Payload) IsRedemption() bool {
	return p.Type == TypeRedemption
}

// RenderPNG draws the encoded payload as a QR code image, sized in pixels.
func RenderPNG(encoded string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(encoded, qrcode.Medium, size)
}
