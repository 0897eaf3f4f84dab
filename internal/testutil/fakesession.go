// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeSession is an in-memory browser.Session. It records every interaction
// and serves canned page content, so capture logic is testable without a
// browser binary.
type FakeSession struct {
	mu sync.Mutex

	Navigations []string
	Fills       map[string]string
	Clicks      []string
	Closed      bool

	// ScreenshotData is returned by Screenshot. Defaults to a small
	// PNG-ish byte string when empty.
	ScreenshotData []byte

	// TextBySelector serves Text lookups. A missing selector is an error,
	// like a missing node would be.
	TextBySelector map[string]string

	// PageHTML is returned by PageSource.
	PageHTML string

	// WaitFail lists selectors WaitVisible should time out on.
	WaitFail map[string]bool

	// NavigateErr, when set, fails every navigation. FailURL fails only
	// navigations to that exact URL.
	NavigateErr error
	FailURL     string
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		Fills:          map[string]string{},
		TextBySelector: map[string]string{},
		WaitFail:       map[string]bool{},
	}
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	if f.FailURL != "" && url == f.FailURL {
		return fmt.Errorf("navigate %s: connection refused", url)
	}
	f.Navigations = append(f.Navigations, url)
	return nil
}

func (f *FakeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WaitFail[selector] {
		return fmt.Errorf("wait for %q: timeout", selector)
	}
	return nil
}

func (f *FakeSession) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fills[selector] = value
	return nil
}

func (f *FakeSession) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clicks = append(f.Clicks, selector)
	return nil
}

func (f *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ScreenshotData) > 0 {
		return f.ScreenshotData, nil
	}
	return []byte("\x89PNG fake image"), nil
}

func (f *FakeSession) Text(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.TextBySelector[selector]
	if !ok {
		return "", fmt.Errorf("no node matches %q", selector)
	}
	return text, nil
}

func (f *FakeSession) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageHTML, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// NavigatedTo reports whether any navigation hit the given URL.
func (f *FakeSession) NavigatedTo(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.Navigations {
		if u == url {
			return true
		}
	}
	return false
}
