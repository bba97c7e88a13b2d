package station

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "image/jpeg"
	_ "image/png"
)

var (
	errNoFrame       = errors.New("no frame available")
	errCameraStopped = errors.New("camera stopped")
	errCameraPaused  = errors.New("camera paused")
)

// DirectoryCamera exposes a spool directory of still frames as a capture
// device. The kiosk's capture daemon drops JPEG/PNG frames into the
// directory; each frame is consumed (deleted) after a single read so stale
// codes are never re-decoded.
type DirectoryCamera struct {
	dir string

	mu      sync.Mutex
	paused  bool
	stopped bool
}

func NewDirectoryCamera(dir string) *DirectoryCamera {
	return &DirectoryCamera{dir: dir}
}

func (c *DirectoryCamera) Devices(ctx context.Context) ([]string, error) {
	info, err := os.Stat(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}
	return []string{c.dir}, nil
}

func (c *DirectoryCamera) Start(ctx context.Context, device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errCameraStopped
	}
	c.paused = false
	return nil
}

func (c *DirectoryCamera) Frame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, errCameraStopped
	}
	if c.paused {
		c.mu.Unlock()
		return nil, errCameraPaused
	}
	c.mu.Unlock()

	path, err := c.oldestFrame()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(f)
	f.Close()

	// Consumed either way; an undecodable file would otherwise wedge the loop.
	os.Remove(path)

	if err != nil {
		return nil, errNoFrame
	}
	return img, nil
}

func (c *DirectoryCamera) oldestFrame() (string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", errNoFrame
	}

	// Capture daemons name frames with monotonic timestamps.
	sort.Strings(names)
	return filepath.Join(c.dir, names[0]), nil
}

func (c *DirectoryCamera) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *DirectoryCamera) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errCameraStopped
	}
	c.paused = false
	return nil
}

func (c *DirectoryCamera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}
