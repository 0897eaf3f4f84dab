package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// ChromeSession drives a headless Chrome instance over the DevTools
// protocol. The session owns its browser context chain; per-call contexts
// only bound cancelation and timeouts.
type ChromeSession struct {
	cfg    Config
	logger zerolog.Logger

	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	closeOnce sync.Once
}

// NewChromeSession launches a browser and returns a ready session. The
// caller must Close it.
func NewChromeSession(parent context.Context, cfg Config, logger zerolog.Logger) (*ChromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if cfg.DisableDevShm {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
	}

	// Starting the browser and enabling network events up front surfaces
	// missing-chrome errors at construction time instead of mid-capture.
	if err := s.run(parent, cfg.ActionTimeout, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	logger.Info().
		Bool("headless", cfg.Headless).
		Int("width", cfg.WindowWidth).
		Int("height", cfg.WindowHeight).
		Msg("browser session started")
	return s, nil
}

// run executes actions on the session's browser context, bounded by timeout
// and by the caller's context.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	idle := waitNetworkIdle(s.ctx, s.cfg.IdleAfter)

	if err := s.run(ctx, s.cfg.NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-idle:
	case <-time.After(s.cfg.SettleMax):
		s.logger.Debug().Str("url", url).Msg("network did not go idle before settle cap")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *ChromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s *ChromeSession) Fill(ctx context.Context, selector, value string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (s *ChromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *ChromeSession) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text of %q: %w", selector, err)
	}
	return out, nil
}

func (s *ChromeSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelCtx()
		s.cancelAlloc()
		s.logger.Info().Msg("browser session closed")
	})
	return nil
}

// waitNetworkIdle returns a channel that is closed once the page's network
// has been quiet for idleAfter. The timer starts immediately so pages that
// load no subresources still settle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timerMu sync.Mutex
	var timer *time.Timer
	var once sync.Once

	startTimer := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	startTimer()
	return idleChan
}
