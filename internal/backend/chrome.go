// File: internal/backend/chrome.go
package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/config"
)

// typeInterKeyDelay spaces out synthetic keystrokes so reactive pages see
// realistic input events.
const typeInterKeyDelay = 25 * time.Millisecond

// launchTimeout bounds the headless browser startup.
const launchTimeout = 30 * time.Second

// ChromeBackend realizes the actuation contract against a headless browser
// process owned directly by this process, driven over the DevTools protocol.
// It exposes no shell surface.
type ChromeBackend struct {
	cfg     config.BrowserConfig
	display config.DisplayConfig
	logger  *zap.Logger

	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	ready       bool
	cleanupOnce sync.Once
}

var _ Backend = (*ChromeBackend)(nil)

// NewChromeBackend builds the process-backed adapter.
func NewChromeBackend(cfg config.BrowserConfig, display config.DisplayConfig, logger *zap.Logger) *ChromeBackend {
	return &ChromeBackend{
		cfg:     cfg,
		display: display,
		logger:  logger.Named("chrome_backend"),
	}
}

func (b *ChromeBackend) Name() string { return "chrome" }

func (b *ChromeBackend) SupportsShell() bool { return false }

// Initialize launches the headless browser with a viewport fixed to the
// configured display size.
func (b *ChromeBackend) Initialize(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(b.display.Width, b.display.Height),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
	if !b.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	for _, arg := range b.cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	// The browser's lifetime is decoupled from the run context: teardown is
	// explicit, and a final screenshot must stay obtainable after a
	// run-level timeout.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)
	b.browserCtx = browserCtx
	b.cancelCtx = cancelCtx
	b.cancelAlloc = cancelAlloc

	launchCtx, cancel := context.WithTimeout(browserCtx, launchTimeout)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		b.Cleanup(ctx)
		return fmt.Errorf("headless browser launch failed: %w", err)
	}

	b.ready = true
	b.logger.Info("Headless browser launched",
		zap.Int("width", b.display.Width),
		zap.Int("height", b.display.Height),
		zap.Bool("headless", b.cfg.Headless),
	)
	return nil
}

// Navigate loads the URL and waits for the document plus a post-load settle
// period, bounded by the navigation timeout.
func (b *ChromeBackend) Navigate(ctx context.Context, url string) error {
	if !b.ready {
		return fmt.Errorf("browser is not running")
	}
	timeout := b.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(b.browserCtx, timeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %q timed out after %v: %w", url, timeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %q failed: %w", url, err)
	}
	return settle(ctx, b.cfg.PostLoadWait)
}

// Screenshot captures the viewport as base64 PNG.
func (b *ChromeBackend) Screenshot(ctx context.Context) (string, error) {
	if !b.ready {
		return "", fmt.Errorf("browser is not running")
	}
	opCtx, cancel := b.opContext(30 * time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("viewport capture failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Click dispatches a primary mouse click at the coordinate.
func (b *ChromeBackend) Click(ctx context.Context, x, y int) error {
	if !b.ready {
		return fmt.Errorf("browser is not running")
	}
	if err := validateCoordinates(x, y, b.display.Width, b.display.Height); err != nil {
		return err
	}
	opCtx, cancel := b.opContext(15 * time.Second)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.MouseClickXY(float64(x), float64(y))); err != nil {
		return fmt.Errorf("click at (%d, %d) failed: %w", x, y, err)
	}
	return settle(ctx, ClickSettleDelay)
}

// Type sends the text as native key events to the focused element, with a
// small inter-character delay.
func (b *ChromeBackend) Type(ctx context.Context, text string) error {
	if !b.ready {
		return fmt.Errorf("browser is not running")
	}
	opCtx, cancel := b.opContext(60 * time.Second)
	defer cancel()

	actions := make([]chromedp.Action, 0, 2*len(text))
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)), chromedp.Sleep(typeInterKeyDelay))
	}
	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	return settle(ctx, TypeSettleDelay)
}

// Key presses a named key, translating X keysyms into the browser automation
// vocabulary. Unmapped symbols pass through unchanged.
func (b *ChromeBackend) Key(ctx context.Context, symbol string) error {
	if !b.ready {
		return fmt.Errorf("browser is not running")
	}
	opCtx, cancel := b.opContext(15 * time.Second)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.KeyEvent(ToBrowserKey(symbol))); err != nil {
		return fmt.Errorf("key press %q failed: %w", symbol, err)
	}
	return settle(ctx, KeySettleDelay)
}

// Scroll dispatches a wheel event at the coordinate. Magnitude is in pixels
// for this adapter.
func (b *ChromeBackend) Scroll(ctx context.Context, x, y int, direction string, amount int) error {
	if !b.ready {
		return fmt.Errorf("browser is not running")
	}
	if err := validateCoordinates(x, y, b.display.Width, b.display.Height); err != nil {
		return err
	}
	dx, dy, err := scrollDelta(direction, amount)
	if err != nil {
		return err
	}
	opCtx, cancel := b.opContext(15 * time.Second)
	defer cancel()

	wheel := chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, float64(x), float64(y)).
			WithDeltaX(float64(dx)).
			WithDeltaY(float64(dy)).
			Do(ctx)
	})
	if err := chromedp.Run(opCtx, wheel); err != nil {
		return fmt.Errorf("scroll %s failed: %w", direction, err)
	}
	return settle(ctx, ScrollSettleDelay)
}

// RunShell is not offered by the process adapter.
func (b *ChromeBackend) RunShell(ctx context.Context, command string) (string, error) {
	return "", ErrShellUnsupported
}

// Cleanup closes the browser process. Idempotent, and guaranteed to run via
// the deferred teardown around the whole execution.
func (b *ChromeBackend) Cleanup(ctx context.Context) {
	b.cleanupOnce.Do(func() {
		b.ready = false
		if b.cancelCtx != nil {
			b.cancelCtx()
		}
		if b.cancelAlloc != nil {
			b.cancelAlloc()
		}
		b.logger.Debug("Headless browser closed")
	})
}

// opContext derives a bounded context for one browser command.
func (b *ChromeBackend) opContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.browserCtx, timeout)
}
