// Package browser captures live accessibility snapshots from Chrome via
// the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"snapshot-query/internal/config"
	"snapshot-query/internal/snapshot"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when neither a debugger URL nor a launch
// command is configured.
var ErrNotConfigured = errors.New("no debugger_url or launch command provided")

// Capture is one accessibility snapshot taken from a page.
type Capture struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Title      string         `json:"title,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
	Tree       *snapshot.Tree `json:"-"`
}

// Capturer owns a Chrome connection and turns pages into snapshot trees.
type Capturer struct {
	cfg config.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// NewCapturer returns a capturer; nothing is started until Start or the
// first Capture.
func NewCapturer(cfg config.BrowserConfig) *Capturer {
	return &Capturer{cfg: cfg}
}

// Start connects to an existing Chrome or launches one with Rod's launcher.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Capturer) startLocked(ctx context.Context) error {
	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		log.Printf("stale browser connection detected, reconnecting...")
		_ = c.browser.Close()
		c.browser = nil
		c.controlURL = ""
	}

	controlURL := c.cfg.DebuggerURL
	if controlURL == "" && len(c.cfg.Launch) > 0 {
		url, err := c.launcher().Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}
	if controlURL == "" {
		return ErrNotConfigured
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	c.browser = browser
	c.controlURL = controlURL
	log.Printf("browser connected at %s", controlURL)
	return nil
}

func (c *Capturer) launcher() *launcher.Launcher {
	l := launcher.New().Bin(c.cfg.Launch[0]).Headless(c.cfg.IsHeadless())
	for _, raw := range c.cfg.Launch[1:] {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Connected reports whether a browser is attached.
func (c *Capturer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser != nil
}

// ControlURL returns the DevTools endpoint in use.
func (c *Capturer) ControlURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlURL
}

// Capture opens url in a fresh incognito page, waits for it to load and
// returns its accessibility tree. The page is closed afterwards.
func (c *Capturer) Capture(ctx context.Context, url string) (*Capture, error) {
	if url == "" {
		return nil, errors.New("url is required")
	}

	c.mu.Lock()
	if err := c.startLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	browser := c.browser
	c.mu.Unlock()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(c.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Printf("capture %s: wait load: %v", url, err)
	}

	res, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("accessibility tree: %w", err)
	}

	capture := &Capture{
		ID:         uuid.NewString(),
		URL:        url,
		CapturedAt: time.Now(),
		Tree:       BuildTree(FromProto(res.Nodes)),
	}
	if info, err := page.Info(); err == nil {
		capture.Title = info.Title
		capture.URL = info.URL
	}
	log.Printf("captured %s: %d elements", capture.URL, capture.Tree.Len())
	return capture, nil
}

// Shutdown closes the browser connection.
func (c *Capturer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	c.controlURL = ""
	return err
}
