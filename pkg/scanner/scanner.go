// Package scanner drives a camera-fed QR scanning session: it owns the
// capture device for its lifetime, polls frames for decodable codes, and
// hands decoded payloads to a verifier, surfacing exactly one success per
// session. The camera is a scarce exclusive OS resource, so release on every
// exit path is part of the contract, not a courtesy.
package scanner

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/opskap1/temnos/pkg/qr"
)

type State string

const (
	StateInitializing State = "initializing"
	StateScanning     State = "scanning"
	StateProcessing   State = "processing"
	StateSuccess      State = "success"
	StateError        State = "error"
)

type Mode string

const (
	ModeCustomer   Mode = "customer"
	ModeRedemption Mode = "redemption"
)

const (
	// DetectionBoxSize is the side of the central square region decode
	// attempts run against, in logical pixels.
	DetectionBoxSize = 280

	defaultPollInterval = 100 * time.Millisecond // 10 frames per second
	defaultSuccessDelay = 750 * time.Millisecond
)

// Messages shown to the operator.
const (
	MsgNoCameras        = "No cameras found on this device."
	MsgCameraEnumFailed = "Camera access denied or failed to enumerate devices. Please check permissions."
	MsgCameraStartFail  = "Failed to start camera. Please ensure permissions are granted."
	MsgWrongRestaurant  = "QR code is not valid for this restaurant."
	MsgNotRedemption    = "Please scan a reward redemption QR code, not a customer QR."
	MsgProcessingFailed = "An unexpected error occurred while processing the QR code."
	msgFallbackInvalid  = "Invalid QR code or token already consumed."
)

var (
	ErrNoCamera = errors.New("no camera available")
	// ErrNoCode is returned by a Decoder when the frame holds nothing decodable.
	ErrNoCode = errors.New("no QR code in frame")
)

// Camera is one exclusive video capture device. Stop must be idempotent and
// safe to call concurrently with Frame; the controller relies on that during
// teardown.
type Camera interface {
	Devices(ctx context.Context) ([]string, error)
	Start(ctx context.Context, device string) error
	Frame(ctx context.Context) (image.Image, error)
	Pause() error
	Resume() error
	Stop() error
}

// Decoder extracts QR code text from a frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// VerifyResult mirrors the tokens service verdict envelope.
type VerifyResult struct {
	Valid   bool        `json:"valid"`
	Payload *qr.Payload `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Verifier checks and consumes a decoded payload. The error return is for
// transport-level failures only; protocol rejections ride in the result.
type Verifier interface {
	VerifyAndConsume(ctx context.Context, encodedPayload string) (*VerifyResult, error)
}

type Options struct {
	RestaurantID string
	Mode         Mode
	Camera       Camera
	Decoder      Decoder
	Verifier     Verifier

	// OnScanSuccess fires exactly once per successful session, after the
	// success state has been displayed for SuccessDelay.
	OnScanSuccess func(customerID, restaurantID string, payload *qr.Payload)

	// OnClose fires on explicit Close, never automatically on success.
	OnClose func()

	// OnStatus, if set, observes every state transition with its operator
	// message. Fatal camera failures arrive as StateError; recoverable
	// rejection text rides on the return to StateScanning.
	OnStatus func(state State, message string)

	// PollInterval and SuccessDelay default to 100ms and 750ms.
	PollInterval time.Duration
	SuccessDelay time.Duration
}

type Controller struct {
	opts Options

	mu      sync.Mutex
	state   State
	message string
	cancel  context.CancelFunc

	releaseOnce sync.Once
	closeOnce   sync.Once
}

func New(opts Options) (*Controller, error) {
	if opts.Camera == nil || opts.Decoder == nil || opts.Verifier == nil {
		return nil, errors.New("scanner: camera, decoder and verifier are required")
	}
	if opts.RestaurantID == "" {
		return nil, errors.New("scanner: restaurant id is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeCustomer
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SuccessDelay <= 0 {
		opts.SuccessDelay = defaultSuccessDelay
	}
	return &Controller{opts: opts, state: StateInitializing}, nil
}

// Run executes one scan session and blocks until it finishes: success, fatal
// camera error, or cancellation. Camera release is guaranteed on every path.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()
	defer c.release()

	c.setState(StateInitializing, "")

	devices, err := c.opts.Camera.Devices(ctx)
	if err != nil {
		c.setState(StateError, MsgCameraEnumFailed)
		return err
	}
	if len(devices) == 0 {
		c.setState(StateError, MsgNoCameras)
		return ErrNoCamera
	}

	if err := c.opts.Camera.Start(ctx, devices[0]); err != nil {
		c.setState(StateError, MsgCameraStartFail)
		return err
	}

	c.setState(StateScanning, "")

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := c.opts.Camera.Frame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue // transient capture miss
			}

			text, err := c.opts.Decoder.Decode(cropCenter(frame, DetectionBoxSize))
			if err != nil || text == "" {
				continue
			}

			if c.process(ctx, text) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// process runs one verification round trip. It returns true when the session
// is over (success delivered). All failures funnel back to scanning; no
// panic escapes this method.
func (c *Controller) process(ctx context.Context, text string) (done bool) {
	c.setState(StateProcessing, "")
	_ = c.opts.Camera.Pause()

	defer func() {
		if r := recover(); r != nil {
			c.resumeWithError(MsgProcessingFailed)
			done = false
		}
	}()

	// Once a payload is in flight the token's fate must be decided by the
	// store, not by whoever closes the scanner first: the verify call runs to
	// completion even if the session is cancelled mid-processing.
	result, err := c.opts.Verifier.VerifyAndConsume(context.WithoutCancel(ctx), text)
	if err != nil {
		c.resumeWithError(MsgProcessingFailed)
		return false
	}

	if !result.Valid {
		msg := result.Error
		if msg == "" {
			msg = msgFallbackInvalid
		}
		c.resumeWithError(msg)
		return false
	}

	// Contextual checks run after consumption, so a wrong-mode scan still
	// burns the token. Reissuing is cheap; un-consuming is not.
	if result.Payload == nil || result.Payload.RestaurantID != c.opts.RestaurantID {
		c.resumeWithError(MsgWrongRestaurant)
		return false
	}
	if c.opts.Mode == ModeRedemption && !result.Payload.IsRedemption() {
		c.resumeWithError(MsgNotRedemption)
		return false
	}

	c.setState(StateSuccess, "QR code scanned successfully!")

	select {
	case <-time.After(c.opts.SuccessDelay):
	case <-ctx.Done():
		// Host closed during the display delay; the token is consumed but the
		// success callback is withheld, matching one-callback-per-session.
		return true
	}

	if c.opts.OnScanSuccess != nil {
		c.opts.OnScanSuccess(result.Payload.CustomerID, result.Payload.RestaurantID, result.Payload)
	}
	return true
}

// resumeWithError surfaces a recoverable rejection and resumes the feed.
// StateError is reserved for dead sessions, so the message is attached to the
// scanning transition instead of passing through the terminal state.
func (c *Controller) resumeWithError(msg string) {
	_ = c.opts.Camera.Resume()
	c.setState(StateScanning, msg)
}

// Close is the host-initiated dismissal. Safe from any goroutine, any state,
// any number of times; the camera is released even if Run never started.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()

		c.release()

		if c.opts.OnClose != nil {
			c.opts.OnClose()
		}
	})
}

func (c *Controller) release() {
	c.releaseOnce.Do(func() {
		_ = c.opts.Camera.Stop()
	})
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Message returns the operator-facing text for the current state.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Controller) setState(s State, msg string) {
	c.mu.Lock()
	c.state = s
	c.message = msg
	cb := c.opts.OnStatus
	c.mu.Unlock()

	if cb != nil {
		cb(s, msg)
	}
}

// cropCenter trims the frame to the central size x size detection box.
func cropCenter(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}

	x0 := b.Min.X
	y0 := b.Min.Y
	if b.Dx() > size {
		x0 += (b.Dx() - size) / 2
	}
	if b.Dy() > size {
		y0 += (b.Dy() - size) / 2
	}
	rect := image.Rect(x0, y0, min(x0+size, b.Max.X), min(y0+size, b.Max.Y))

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}
