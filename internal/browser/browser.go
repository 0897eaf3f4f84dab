package browser

import (
	"context"
	"time"
)

// Session is a single automated browser session. Implementations own the
// underlying browser handle; Close must be safe to call exactly once and
// releases the browser regardless of what happened before.
type Session interface {
	// Navigate loads the URL and waits for the page's network activity to
	// settle (bounded by the session config).
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible node or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Fill sets the value of the input matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the first node matching selector.
	Click(ctx context.Context, selector string) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Text returns the visible text of the first node matching selector.
	Text(ctx context.Context, selector string) (string, error)

	// PageSource returns the full HTML of the current page.
	PageSource(ctx context.Context) (string, error)

	Close() error
}

// Factory constructs a fresh Session. The orchestrator uses one session per
// capture job.
type Factory func(ctx context.Context) (Session, error)
