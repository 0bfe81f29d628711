// File: internal/mail/otp_test.go

package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

// scriptedMailbox replays one LatestMessage result per polling attempt.
type scriptedMailbox struct {
	body   string
	found  bool
	err    error
	closed *int
}

func (s *scriptedMailbox) LatestMessage(context.Context) (string, bool, error) {
	return s.body, s.found, s.err
}

func (s *scriptedMailbox) Close() error {
	*s.closed++
	return nil
}

// scriptedDialer hands out one mailbox per dial, in order.
type scriptedDialer struct {
	test    *testing.T
	boxes   []*scriptedMailbox
	dials   int
	dialErr map[int]error
}

func (d *scriptedDialer) dial(context.Context, config.MailConfig, string, string, *zap.Logger) (Mailbox, error) {
	i := d.dials
	d.dials++
	if err, ok := d.dialErr[i]; ok {
		return nil, err
	}
	require.Less(d.test, i, len(d.boxes), "dialed more often than scripted")
	return d.boxes[i], nil
}

func testMailConfig(retries int) config.MailConfig {
	return config.MailConfig{
		Host:          "imap.example.test",
		Port:          993,
		SenderDomain:  "ozon.ru",
		SubjectWords:  []string{"код", "code"},
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	}
}

func TestExtractCodeTierOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"six digit run wins", "Ваш код: 123456, запасной 9876", "123456", true},
		{"four digit run", "Подтвердите вход: 4521", "4521", true},
		{"labeled cyrillic", "код для входа - 77", "77", true},
		{"labeled latin", "Your CODE is 88", "88", true},
		{"six beats four", "pin 1234 then 654321 follows", "654321", true},
		{"nothing numeric", "Добро пожаловать!", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCode(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchCodeSucceedsAfterDeliveryDelay(t *testing.T) {
	closed := 0
	d := &scriptedDialer{
		boxes: []*scriptedMailbox{
			{found: false, closed: &closed},
			{found: false, closed: &closed},
			{body: "Ваш код подтверждения: 482913", found: true, closed: &closed},
		},
	}
	d.test = t

	e := NewExtractorWithDialer(testMailConfig(8), d.dial, zap.NewNop())
	code, err := e.FetchCode(context.Background(), "a@example.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
	assert.Equal(t, 3, d.dials, "should stop polling once a code is found")
	assert.Equal(t, 3, closed, "every dialed mailbox must be closed")
}

func TestFetchCodeExhaustsBudget(t *testing.T) {
	closed := 0
	boxes := make([]*scriptedMailbox, 4)
	for i := range boxes {
		boxes[i] = &scriptedMailbox{found: false, closed: &closed}
	}
	d := &scriptedDialer{boxes: boxes}
	d.test = t

	e := NewExtractorWithDialer(testMailConfig(4), d.dial, zap.NewNop())
	_, err := e.FetchCode(context.Background(), "a@example.test", "pw")
	require.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, 4, d.dials, "budget is a hard cap on attempts")
	assert.Equal(t, 4, closed)
}

func TestFetchCodeProtocolErrorsBurnAttempts(t *testing.T) {
	closed := 0
	d := &scriptedDialer{
		boxes: []*scriptedMailbox{
			nil,
			{body: "код 555444", found: true, closed: &closed},
		},
		dialErr: map[int]error{
			0: &ProtocolError{Op: "login", Err: errors.New("bad credentials")},
		},
	}
	d.test = t

	e := NewExtractorWithDialer(testMailConfig(3), d.dial, zap.NewNop())
	code, err := e.FetchCode(context.Background(), "a@example.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "555444", code)
	assert.Equal(t, 2, d.dials)
}

func TestFetchCodeReportsLastProtocolError(t *testing.T) {
	d := &scriptedDialer{
		dialErr: map[int]error{
			0: &ProtocolError{Op: "dial", Err: errors.New("refused")},
			1: &ProtocolError{Op: "dial", Err: errors.New("refused")},
		},
	}
	d.test = t

	e := NewExtractorWithDialer(testMailConfig(2), d.dial, zap.NewNop())
	_, err := e.FetchCode(context.Background(), "a@example.test", "pw")
	require.ErrorIs(t, err, ErrNoCode)
	assert.Contains(t, err.Error(), "refused")
}

func TestFetchCodeHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	closed := 0
	d := &scriptedDialer{boxes: []*scriptedMailbox{{found: false, closed: &closed}}}
	d.test = t

	e := NewExtractorWithDialer(testMailConfig(8), d.dial, zap.NewNop())
	_, err := e.FetchCode(ctx, "a@example.test", "pw")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubjectCriteriaBuildsOrChain(t *testing.T) {
	crit := subjectCriteria([]string{"код", "code", "ozon"})
	require.NotNil(t, crit)
	require.Len(t, crit.Or, 1)

	left, right := crit.Or[0][0], crit.Or[0][1]
	assert.Equal(t, []string{"ozon"}, right.Header.Values("Subject"))
	require.Len(t, left.Or, 1)
	assert.Equal(t, []string{"код"}, left.Or[0][0].Header.Values("Subject"))
	assert.Equal(t, []string{"code"}, left.Or[0][1].Header.Values("Subject"))
}

func TestSubjectCriteriaEmpty(t *testing.T) {
	assert.Nil(t, subjectCriteria(nil))
}
