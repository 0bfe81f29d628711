// File: internal/orchestrator/orchestrator.go
// Description: Sequential batch driver. Each pending account gets a fresh
// proxied browser session, an egress health check, one login attempt, and an
// immediate cookie write-back. An account failing never stops the batch, and
// at most one session with its proxy artifact is alive at any moment.

package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/browser"
	"github.com/dvmarkelov/onboard-cli/internal/healthcheck"
	"github.com/dvmarkelov/onboard-cli/internal/login"
	"github.com/dvmarkelov/onboard-cli/internal/store"
)

// Session is the per-account browser surface the orchestrator hands to the
// health check and the login flow.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	Click(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	Fill(ctx context.Context, selector, text string, timeout time.Duration) (bool, error)
	PressEnter(ctx context.Context, selector string) error
	Cookies(ctx context.Context) (string, error)
	ClearCookies(ctx context.Context) error
	Screenshot(ctx context.Context, path string) error
	Close()
}

// SessionFactory creates a session together with a teardown that releases
// both the browser and its proxy credential artifact.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, func(), error)
}

// AccountStore is the slice of the spreadsheet store the orchestrator needs.
type AccountStore interface {
	Accounts() []store.Account
	SetCookies(index int, cookies string) error
}

// HealthChecker verifies a session's proxy egress before any account data
// is typed into it.
type HealthChecker interface {
	Verify(ctx context.Context, p healthcheck.Prober) error
}

// LoginFlow runs the login state machine for one account.
type LoginFlow interface {
	Run(ctx context.Context, page login.Page, acc login.Account) (string, error)
}

// Summary reports what happened to the batch.
type Summary struct {
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
}

// Orchestrator walks the account batch sequentially.
type Orchestrator struct {
	accounts AccountStore
	sessions SessionFactory
	health   HealthChecker
	flow     LoginFlow
	logger   *zap.Logger
}

// New creates a batch orchestrator.
func New(accounts AccountStore, sessions SessionFactory, health HealthChecker, flow LoginFlow, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		sessions: sessions,
		health:   health,
		flow:     flow,
		logger:   logger.Named("orchestrator"),
	}
}

// Run processes every pending account in order. Rows that already carry
// cookies are skipped, which makes re-running an interrupted batch safe.
// Only a canceled context returns an error; account failures are counted.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	accounts := o.accounts.Accounts()
	summary := Summary{Total: len(accounts)}

	var teardown func()
	closeCurrent := func() {
		if teardown != nil {
			teardown()
			teardown = nil
		}
	}
	defer closeCurrent()

	for i, acc := range accounts {
		// The previous account's browser dies before the next one starts.
		closeCurrent()

		if err := ctx.Err(); err != nil {
			return summary, err
		}

		logger := o.logger.With(zap.Int("account_index", acc.Index), zap.String("phone", acc.Phone))
		logger.Info("Processing account", zap.Int("position", i+1), zap.Int("total", summary.Total))
		if acc.Done() {
			logger.Info("Account already has cookies, skipping")
			summary.Skipped++
			continue
		}

		sess, td, err := o.sessions.NewSession(ctx)
		if err != nil {
			logger.Error("Session creation failed", zap.Error(err))
			summary.Failed++
			continue
		}
		teardown = td
		logger = logger.With(zap.String("session_id", sess.ID()))

		if err := o.health.Verify(ctx, sess); err != nil {
			logger.Error("Proxy health check failed, account skipped", zap.Error(err))
			summary.Failed++
			continue
		}

		cookies, err := o.flow.Run(ctx, sess, login.Account{
			Index:         acc.Index,
			Phone:         acc.Phone,
			Email:         acc.Email,
			EmailPassword: acc.EmailPassword,
		})
		if err != nil {
			logger.Error("Login failed", zap.Error(err))
			summary.Failed++
			continue
		}

		// Persist immediately: a crash later in the batch must not cost
		// this account its session.
		if err := o.accounts.SetCookies(acc.Index, cookies); err != nil {
			logger.Error("Persisting cookies failed", zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Succeeded++
		logger.Info("Account onboarded, cookies persisted")

		// The profile dies with the browser, but clearing here guarantees
		// nothing leaks even if teardown is interrupted.
		if err := sess.ClearCookies(ctx); err != nil {
			logger.Warn("Post-capture cookie clear failed", zap.Error(err))
		}
	}
	closeCurrent()

	o.logger.Info("Batch complete",
		zap.Int("total", summary.Total),
		zap.Int("skipped", summary.Skipped),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// NewBrowserSessionFactory adapts the concrete chromedp factory to the
// SessionFactory interface.
func NewBrowserSessionFactory(f *browser.Factory, logger *zap.Logger) SessionFactory {
	return &chromeFactory{f: f, logger: logger}
}

type chromeFactory struct {
	f      *browser.Factory
	logger *zap.Logger
}

func (c *chromeFactory) NewSession(ctx context.Context) (Session, func(), error) {
	sess, artifact, err := c.f.NewSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	teardown := func() {
		sess.Close()
		artifact.Remove(c.logger)
	}
	return sess, teardown, nil
}
