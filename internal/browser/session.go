// File: internal/browser/session.go
// Description: A Session is one isolated, proxy-bound browser instance. It
// exposes the narrow UI-control surface the login flow and the health check
// need: navigation, optional-result element lookups, typing, cookies, and
// failure screenshots. Lookups report "not found" instead of failing, so
// every alternate-UI fallback upstream is an explicit branch.

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session wraps a dedicated browser process bound to one proxy-auth artifact.
// Exactly one session exists per account being processed; sessions are never
// shared or reused across accounts.
type Session struct {
	id     string
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	closeOnce sync.Once
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Close terminates the browser process. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session")
		if s.tabCancel != nil {
			s.tabCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
}

// Navigate loads a URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	s.logger.Debug("Navigating", zap.String("url", url))
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// BodyText returns the visible text of the document body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	var text string
	if err := chromedp.Run(runCtx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	return text, nil
}

// WaitVisible waits up to timeout for an element matching the XPath selector
// to become visible. A timeout is not an error: it reports (false, nil) so
// the caller can branch on absence.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	runCtx, cancel := s.combineTimeout(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.BySearch))
	return s.foundResult(err)
}

// Click waits for the element to be visible and clicks it. Absence within
// the timeout reports (false, nil).
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	runCtx, cancel := s.combineTimeout(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
	return s.foundResult(err)
}

// Fill clears the element and types the given text into it. Absence within
// the timeout reports (false, nil).
func (s *Session) Fill(ctx context.Context, selector, text string, timeout time.Duration) (bool, error) {
	runCtx, cancel := s.combineTimeout(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, text, chromedp.BySearch),
	)
	return s.foundResult(err)
}

// PressEnter sends a terminal Enter keystroke to the element, the fallback
// submission path when no explicit control is present.
func (s *Session) PressEnter(ctx context.Context, selector string) error {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.SendKeys(selector, kb.Enter, chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to send Enter to %s: %w", selector, err)
	}
	return nil
}

// Cookies captures the session's full cookie set as a JSON document. This is
// the value persisted against the account record on success.
func (s *Session) Cookies(ctx context.Context) (string, error) {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	var serialized string
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(cookies)
		if err != nil {
			return err
		}
		serialized = string(data)
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("failed to capture cookies: %w", err)
	}
	return serialized, nil
}

// ClearCookies drops every cookie in the session. Session replacement is the
// primary isolation mechanism; this is the secondary safety net.
func (s *Session) ClearCookies(ctx context.Context) error {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.ClearCookies().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

// Screenshot captures the viewport to the given file path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	runCtx, cancel := s.combine(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	s.logger.Info("Saved screenshot", zap.String("path", path))
	return nil
}

// foundResult maps a bounded-wait error to the optional-result convention:
// a deadline means "not found", anything else is a real failure.
func (s *Session) foundResult(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if errors.Is(err, context.Canceled) {
		return false, err
	}
	return false, err
}

// combine derives a run context from the session's tab that is also canceled
// when the caller's context is.
func (s *Session) combine(ctx context.Context) (context.Context, context.CancelFunc) {
	return combineContext(s.tabCtx, ctx)
}

// combineTimeout additionally bounds the derived context.
func (s *Session) combineTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancel := combineContext(s.tabCtx, ctx)
	bounded, cancelTimeout := context.WithTimeout(combined, timeout)
	return bounded, func() {
		cancelTimeout()
		cancel()
	}
}

// combineContext creates a context derived from parentCtx that is canceled
// when either parentCtx or secondaryCtx is canceled. Derivation from the tab
// context is required so chromedp keeps its target bookkeeping.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

func newSessionID() string {
	return uuid.New().String()
}
