package domain

import (
	"time"

	"github.com/opskap1/temnos/pkg/qr"
)

// TokenRecord is one issued, single-use capability. After creation the only
// legal mutation is used=false -> used=true, exactly once; expired records
// are removed by the sweep, never updated.
type TokenRecord struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	RestaurantID string    `json:"restaurant_id"`
	Token        string    `json:"token"`
	RewardID     *string   `json:"reward_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Used         bool      `json:"used"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t *TokenRecord) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// VerifyResult is the tagged outcome of a verify-and-consume call. Expected
// validation failures are carried here, never as Go errors.
type VerifyResult struct {
	Valid   bool        `json:"valid"`
	Payload *qr.Payload `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// User-facing scan failure messages. "Not found" deliberately covers
// never-existed, wrong owner and already-consumed alike, so a scanner cannot
// be used to enumerate live tokens.
const (
	MsgInvalidFormat  = "Invalid QR code format"
	MsgMissingFields  = "Missing required fields in QR code"
	MsgNotFoundOrUsed = "QR code not found or already used"
	MsgExpired        = "QR code has expired"
	MsgVerifyFailed   = "Error verifying QR code"
	MsgProcessFailed  = "Error processing QR code"
)

// TokenBytes is the entropy of the random token: 32 bytes, hex-encoded to 64
// lowercase characters on the wire.
const TokenBytes = 32
