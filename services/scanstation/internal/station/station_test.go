package station

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/opskap1/temnos/pkg/scanner"
)

func writeFrame(t *testing.T, dir, name string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create frame: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func TestDirectoryCameraConsumesOldestFrame(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "0002.png")
	writeFrame(t, dir, "0001.png")

	cam := NewDirectoryCamera(dir)
	ctx := context.Background()

	devices, err := cam.Devices(ctx)
	if err != nil || len(devices) != 1 {
		t.Fatalf("expected one device, got %v (%v)", devices, err)
	}
	if err := cam.Start(ctx, devices[0]); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := cam.Frame(ctx); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "0001.png")); !os.IsNotExist(err) {
		t.Error("expected the oldest frame to be consumed")
	}
	if _, err := os.Stat(filepath.Join(dir, "0002.png")); err != nil {
		t.Error("expected the newer frame to remain")
	}

	if _, err := cam.Frame(ctx); err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if _, err := cam.Frame(ctx); !errors.Is(err, errNoFrame) {
		t.Errorf("expected errNoFrame on empty spool, got %v", err)
	}
}

func TestDirectoryCameraPauseAndStop(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "0001.png")

	cam := NewDirectoryCamera(dir)
	ctx := context.Background()
	if err := cam.Start(ctx, dir); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := cam.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := cam.Frame(ctx); !errors.Is(err, errCameraPaused) {
		t.Errorf("expected errCameraPaused, got %v", err)
	}
	if err := cam.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := cam.Frame(ctx); err != nil {
		t.Errorf("expected a frame after resume, got %v", err)
	}

	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := cam.Frame(ctx); !errors.Is(err, errCameraStopped) {
		t.Errorf("expected errCameraStopped, got %v", err)
	}
	if err := cam.Resume(); !errors.Is(err, errCameraStopped) {
		t.Errorf("expected resume after stop to fail, got %v", err)
	}
}

func TestDirectoryCameraMissingDirHasNoDevices(t *testing.T) {
	cam := NewDirectoryCamera(filepath.Join(t.TempDir(), "missing"))
	devices, err := cam.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices for a missing spool dir, got %v", devices)
	}
}

func TestDirectoryCameraSkipsUndecodableFrame(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cam := NewDirectoryCamera(dir)
	if _, err := cam.Frame(context.Background()); !errors.Is(err, errNoFrame) {
		t.Fatalf("expected errNoFrame, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "0001.png")); !os.IsNotExist(err) {
		t.Error("expected undecodable frame to be consumed")
	}
}

func TestHTTPVerifierRoundTrip(t *testing.T) {
	var gotAuth, gotPath, gotData string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotData = req.QRData

		json.NewEncoder(w).Encode(scanner.VerifyResult{Valid: false, Error: "QR code has expired"})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL+"/", "station-jwt")
	result, err := v.VerifyAndConsume(context.Background(), "encoded-payload")
	if err != nil {
		t.Fatalf("VerifyAndConsume: %v", err)
	}

	if gotAuth != "Bearer station-jwt" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/scan/verify" {
		t.Errorf("expected /scan/verify, got %q", gotPath)
	}
	if gotData != "encoded-payload" {
		t.Errorf("expected payload forwarded, got %q", gotData)
	}
	if result.Valid || result.Error != "QR code has expired" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPVerifierNon200IsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "bad-token")
	if _, err := v.VerifyAndConsume(context.Background(), "encoded-payload"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
