package browser

import "time"

// Config controls the chromedp-backed session.
type Config struct {
	// Headless disables the visible browser window.
	Headless bool

	// NoSandbox and DisableDevShm are required in most container
	// environments.
	NoSandbox     bool
	DisableDevShm bool

	WindowWidth  int
	WindowHeight int

	// IdleAfter is how long the network must stay quiet after a navigation
	// before the page counts as settled.
	IdleAfter time.Duration

	// SettleMax caps how long Navigate waits for network idle.
	SettleMax time.Duration

	// NavigateTimeout and ActionTimeout bound individual CDP round trips.
	NavigateTimeout time.Duration
	ActionTimeout   time.Duration
}

// DefaultConfig returns the settings the capture tool runs with in CI.
func DefaultConfig() Config {
	return Config{
		Headless:        true,
		NoSandbox:       true,
		DisableDevShm:   true,
		WindowWidth:     1920,
		WindowHeight:    1080,
		IdleAfter:       2 * time.Second,
		SettleMax:       10 * time.Second,
		NavigateTimeout: 30 * time.Second,
		ActionTimeout:   15 * time.Second,
	}
}
