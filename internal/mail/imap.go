// File: internal/mail/imap.go
// Description: IMAP implementation of the Mailbox interface. Candidate
// messages are located with three search tiers of decreasing precision:
// unseen mail from the platform, any mail from the platform, then anything
// whose subject mentions a verification keyword.

package mail

import (
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

type imapMailbox struct {
	c      *client.Client
	cfg    config.MailConfig
	logger *zap.Logger
}

// DialIMAP connects to the configured IMAP server over TLS, authenticates
// with the account's mail credentials, and opens INBOX read-only.
func DialIMAP(_ context.Context, cfg config.MailConfig, email, password string, logger *zap.Logger) (Mailbox, error) {
	c, err := client.DialTLS(cfg.Addr(), nil)
	if err != nil {
		return nil, &ProtocolError{Op: "dial", Err: err}
	}
	if err := c.Login(email, password); err != nil {
		_ = c.Logout()
		return nil, &ProtocolError{Op: "login", Err: err}
	}
	if _, err := c.Select("INBOX", true); err != nil {
		_ = c.Logout()
		return nil, &ProtocolError{Op: "select", Err: err}
	}
	return &imapMailbox{c: c, cfg: cfg, logger: logger}, nil
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}

// LatestMessage walks the search tiers and fetches the newest hit.
func (m *imapMailbox) LatestMessage(ctx context.Context) (string, bool, error) {
	tiers := []struct {
		name     string
		criteria *imap.SearchCriteria
	}{
		{"unseen from sender", m.unseenFromSender()},
		{"any from sender", m.anyFromSender()},
		{"subject keywords", subjectCriteria(m.cfg.SubjectWords)},
	}

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if tier.criteria == nil {
			continue
		}
		ids, err := m.c.Search(tier.criteria)
		if err != nil {
			return "", false, &ProtocolError{Op: "search", Err: err}
		}
		if len(ids) == 0 {
			continue
		}
		m.logger.Debug("Candidate messages found",
			zap.String("tier", tier.name), zap.Int("count", len(ids)))
		body, err := m.fetchBody(ids[len(ids)-1])
		if err != nil {
			return "", false, err
		}
		return body, true, nil
	}
	return "", false, nil
}

func (m *imapMailbox) unseenFromSender() *imap.SearchCriteria {
	crit := imap.NewSearchCriteria()
	crit.WithoutFlags = []string{imap.SeenFlag}
	crit.Header.Add("From", m.cfg.SenderDomain)
	return crit
}

func (m *imapMailbox) anyFromSender() *imap.SearchCriteria {
	crit := imap.NewSearchCriteria()
	crit.Header.Add("From", m.cfg.SenderDomain)
	return crit
}

// subjectCriteria builds an OR-chain matching any of the keywords in the
// subject header.
func subjectCriteria(words []string) *imap.SearchCriteria {
	var crit *imap.SearchCriteria
	for _, w := range words {
		c := imap.NewSearchCriteria()
		c.Header.Add("Subject", w)
		if crit == nil {
			crit = c
			continue
		}
		parent := imap.NewSearchCriteria()
		parent.Or = append(parent.Or, [2]*imap.SearchCriteria{crit, c})
		crit = parent
	}
	return crit
}

// fetchBody downloads one message and flattens it to scannable text.
func (m *imapMailbox) fetchBody(id uint32) (string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.c.Fetch(seqset, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return "", &ProtocolError{Op: "fetch", Err: err}
	}
	if msg == nil {
		return "", &ProtocolError{Op: "fetch", Err: io.ErrUnexpectedEOF}
	}

	r := msg.GetBody(section)
	if r == nil {
		return "", &ProtocolError{Op: "fetch", Err: io.ErrUnexpectedEOF}
	}
	return flattenMessage(r, m.logger)
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// flattenMessage walks the MIME parts and concatenates their text, with
// HTML parts stripped to bare text. Senders sometimes put the code only in
// the HTML alternative, so every part contributes.
func flattenMessage(r io.Reader, logger *zap.Logger) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", &ProtocolError{Op: "parse", Err: err}
	}

	var parts []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A single malformed part should not discard what we already have.
			logger.Debug("Skipping unreadable message part", zap.Error(err))
			break
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, err := h.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}

		switch ctype {
		case "text/plain":
			parts = append(parts, string(data))
		case "text/html":
			parts = append(parts, html.UnescapeString(htmlTagPattern.ReplaceAllString(string(data), " ")))
		}
	}

	return strings.Join(parts, "\n"), nil
}
