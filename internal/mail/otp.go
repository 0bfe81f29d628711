// File: internal/mail/otp.go
// Description: Polls an account's mailbox for the one-time verification code
// the retail platform sends during login. Delivery latency is the dominant
// failure mode, so the extractor runs a fixed retry budget with a flat delay
// and reconnects on every attempt rather than holding one IMAP session open.

package mail

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

// ErrNoCode is returned when the retry budget is exhausted without a
// usable verification code arriving.
var ErrNoCode = errors.New("no verification code found in mailbox")

// ProtocolError tags a failure in the conversation with the mail server.
// It burns a retry attempt like any other miss; the next attempt dials fresh.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mail protocol failure during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Mailbox is a single open connection to the account's mail store.
// Implementations are expected to be cheap to construct because the
// extractor opens a fresh one per polling attempt.
type Mailbox interface {
	// LatestMessage returns the text of the newest candidate message,
	// or found=false when nothing matching the search tiers exists yet.
	LatestMessage(ctx context.Context) (body string, found bool, err error)
	Close() error
}

// Dialer opens a Mailbox for the given account credentials.
type Dialer func(ctx context.Context, cfg config.MailConfig, email, password string, logger *zap.Logger) (Mailbox, error)

// Code patterns are tried strictly in this order. A six-digit run is the
// current format; the shorter run and the labeled forms cover older mails
// that may still sit unread in the inbox.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{6}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
	regexp.MustCompile(`(?i)код\D*(\d+)`),
	regexp.MustCompile(`(?i)code\D*(\d+)`),
}

// Extractor retrieves one-time codes from an IMAP mailbox.
type Extractor struct {
	cfg    config.MailConfig
	dial   Dialer
	logger *zap.Logger
}

// NewExtractor creates an extractor backed by the real IMAP dialer.
func NewExtractor(cfg config.MailConfig, logger *zap.Logger) *Extractor {
	return NewExtractorWithDialer(cfg, DialIMAP, logger)
}

// NewExtractorWithDialer allows substituting the mailbox transport.
func NewExtractorWithDialer(cfg config.MailConfig, dial Dialer, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		dial:   dial,
		logger: logger.Named("mail"),
	}
}

// FetchCode polls the mailbox until a verification code is found or the
// retry budget runs out. Every attempt, including ones lost to transport
// errors, counts against the budget.
func (e *Extractor) FetchCode(ctx context.Context, email, password string) (string, error) {
	var code string
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			result, err := e.pollOnce(ctx, email, password)
			if err != nil {
				e.logger.Warn("Mailbox poll failed",
					zap.Int("attempt", attempt), zap.Error(err))
				return err
			}
			if result == "" {
				e.logger.Debug("No verification code yet", zap.Int("attempt", attempt))
				return ErrNoCode
			}
			code = result
			return nil
		},
		retry.Attempts(uint(e.cfg.MaxRetries)),
		retry.Delay(e.cfg.RetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrNoCode) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("%w: last attempt: %v", ErrNoCode, err)
	}

	e.logger.Info("Verification code retrieved", zap.Int("attempts", attempt))
	return code, nil
}

// pollOnce opens a fresh mailbox connection, fetches the newest candidate
// message, and scans it. Returns "" when no code is available yet.
func (e *Extractor) pollOnce(ctx context.Context, email, password string) (string, error) {
	mb, err := e.dial(ctx, e.cfg, email, password, e.logger)
	if err != nil {
		return "", err
	}
	defer mb.Close()

	body, found, err := mb.LatestMessage(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}

	code, ok := ExtractCode(body)
	if !ok {
		e.logger.Debug("Candidate message carried no recognizable code")
		return "", nil
	}
	return code, nil
}

// ExtractCode scans a message body with the code patterns in priority
// order and returns the first match.
func ExtractCode(body string) (string, bool) {
	for _, pattern := range codePatterns {
		m := pattern.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}
