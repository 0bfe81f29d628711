// File: internal/browser/factory.go
// Description: The Session Factory. Produces one ready-to-use,
// anti-detection-hardened browser session bound to a fresh proxy-auth
// artifact. Construction failures clean up the partial artifact and come
// back as a ResourceError, never as a half-built session.

package browser

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/browser/stealth"
	"github.com/dvmarkelov/onboard-cli/internal/config"
	"github.com/dvmarkelov/onboard-cli/internal/proxyauth"
)

// Factory builds per-account browser sessions. The proxy credential tuple is
// shared read-only across every session the factory produces.
type Factory struct {
	cfg     config.BrowserConfig
	creds   proxyauth.Credentials
	persona stealth.Persona
	logger  *zap.Logger
}

// NewFactory creates a session factory for the given proxy credentials.
func NewFactory(cfg config.BrowserConfig, creds proxyauth.Credentials, logger *zap.Logger) *Factory {
	persona := stealth.DefaultPersona
	if cfg.UserAgent != "" {
		persona.UserAgent = cfg.UserAgent
	}
	return &Factory{
		cfg:     cfg,
		creds:   creds,
		persona: persona,
		logger:  logger.Named("session_factory"),
	}
}

// NewSession builds a fresh proxy-auth artifact, launches an isolated browser
// process with it, applies the stealth persona, and pauses for proxy
// negotiation to settle. The caller owns both returned resources and must
// release them (session closed, artifact removed) before the next account.
func (f *Factory) NewSession(ctx context.Context) (*Session, *proxyauth.Artifact, error) {
	artifact, err := proxyauth.Build(f.creds, f.cfg.ArtifactDir)
	if err != nil {
		return nil, nil, &ResourceError{Op: "proxy artifact construction", Err: err}
	}

	session, err := f.launch(ctx, artifact)
	if err != nil {
		// The artifact is useless without its session; drop it now rather
		// than leaving the orchestrator a dangling file.
		artifact.Remove(f.logger)
		return nil, nil, &ResourceError{Op: "session launch", Err: err}
	}

	// Let the proxy negotiation settle before the session is handed out.
	// There is no observable condition for this, so a fixed delay stays.
	select {
	case <-time.After(f.cfg.ProxySettle):
	case <-ctx.Done():
		session.Close()
		artifact.Remove(f.logger)
		return nil, nil, &ResourceError{Op: "proxy settle", Err: ctx.Err()}
	}

	f.logger.Info("Browser session ready",
		zap.String("session_id", session.ID()),
		zap.String("artifact", artifact.ZipPath))
	return session, artifact, nil
}

// launch starts the browser process and verifies it responds.
func (f *Factory) launch(ctx context.Context, artifact *proxyauth.Artifact) (*Session, error) {
	opts := f.buildAllocatorOptions(artifact)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	id := newSessionID()
	s := &Session{
		id:          id,
		logger:      f.logger.With(zap.String("session_id", id)),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// Confirm the browser starts, then arm the stealth persona before any
	// real navigation happens.
	startCtx, cancelStart := context.WithTimeout(tabCtx, f.cfg.StartupTimeout)
	defer cancelStart()

	if err := chromedp.Run(startCtx,
		chromedp.Navigate("about:blank"),
		stealth.Apply(f.persona, s.logger),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	return s, nil
}

// buildAllocatorOptions assembles the launch flags for a stealthy,
// extension-carrying browser instance. The stock chromedp defaults are not
// usable here: they pass disable-extensions (which would reject the
// proxy-auth extension) and enable-automation (which advertises the session
// as scripted), so the set is defined explicitly.
func (f *Factory) buildAllocatorOptions(artifact *proxyauth.Artifact) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		// Stealth flag: keeps navigator.webdriver from being set by Blink.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("load-extension", artifact.Dir),
		chromedp.WindowSize(f.cfg.WindowWidth, f.cfg.WindowHeight),
		chromedp.UserAgent(f.persona.UserAgent),
	}
	if f.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	// Flags required for running inside containers (e.g., Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
