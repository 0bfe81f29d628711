package stealth

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Timezone  string
	Locale    string
}

// DefaultPersona provides a realistic desktop browser profile for the
// Russian retail storefront the sessions visit.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Timezone:  "Europe/Moscow",
	Locale:    "ru-RU",
}

// Script returns the post-load evasion script. Exposed so tests can assert
// the embedded payload masks the expected signals.
func Script() string {
	return evasionsScript
}

// Apply constructs the Chrome DevTools Protocol actions that make a freshly
// created session look like a user-operated browser before the first
// navigation happens.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	return chromedp.Tasks{
		// The User-Agent override is a direct action.
		emulation.SetUserAgentOverride(p.UserAgent),

		// Inject the evasions script. The ActionFunc wrapper is needed since
		// AddScriptToEvaluateOnNewDocument's Do returns two values and does
		// not match the chromedp.Action interface.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),

		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
	}
}
