package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"snapshot-query/internal/config"
)

func TestCapturerNotConfigured(t *testing.T) {
	c := NewCapturer(config.BrowserConfig{})
	if err := c.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if c.Connected() {
		t.Error("capturer should not be connected")
	}
	if _, err := c.Capture(context.Background(), "http://example.com"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured from Capture, got %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on idle capturer: %v", err)
	}
}

func TestCapturerRequiresURL(t *testing.T) {
	c := NewCapturer(config.BrowserConfig{DebuggerURL: "ws://127.0.0.1:1"})
	if _, err := c.Capture(context.Background(), ""); err == nil {
		t.Error("expected error for empty url")
	}
}

// TestLiveCapture launches the Chrome binary named by SNAPSHOT_QUERY_CHROME.
func TestLiveCapture(t *testing.T) {
	bin := os.Getenv("SNAPSHOT_QUERY_CHROME")
	if bin == "" {
		t.Skip("SNAPSHOT_QUERY_CHROME not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Live</title></head><body>
<button>Search</button><a href="/home">Home</a><input aria-label="Query">
</body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := NewCapturer(config.BrowserConfig{Launch: []string{bin, "--no-sandbox"}})
	defer func() { _ = c.Shutdown(context.Background()) }()

	capture, err := c.Capture(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if capture.ID == "" || capture.Title != "Live" {
		t.Errorf("unexpected capture metadata: %+v", capture)
	}
	if got := len(capture.Tree.FindByRole("button")); got != 1 {
		t.Errorf("expected 1 button, got %d", got)
	}
	if got := capture.Tree.FindByName("Home", true); len(got) == 0 {
		t.Error("expected a Home element")
	}
}
