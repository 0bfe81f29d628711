// File: internal/healthcheck/healthcheck_test.go

package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

// stubProber scripts per-URL responses for the checker.
type stubProber struct {
	bodies    map[string]string
	navErrs   map[string]error
	location  string
	current   string
	navigated []string
}

func (s *stubProber) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if err, ok := s.navErrs[url]; ok {
		return err
	}
	s.current = url
	return nil
}

func (s *stubProber) BodyText(_ context.Context) (string, error) {
	body, ok := s.bodies[s.current]
	if !ok {
		return "", errors.New("no body scripted")
	}
	return body, nil
}

func (s *stubProber) Location(_ context.Context) (string, error) {
	if s.location != "" {
		return s.location, nil
	}
	return s.current, nil
}

func testConfigs() (config.ProxyConfig, config.LoginConfig) {
	proxy := config.ProxyConfig{
		ExpectedIPPrefix: "85.142",
		IPEchoEndpoints:  []string{"https://echo-a.test", "https://echo-b.test"},
	}
	login := config.LoginConfig{
		SiteURL: "https://www.ozon.ru",
		Domain:  "ozon.ru",
	}
	return proxy, login
}

func TestVerifyConfirmsMatchingIP(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{bodies: map[string]string{
		"https://echo-a.test": "  85.142.10.20\n",
	}}

	c := New(proxy, login, zap.NewNop())
	require.NoError(t, c.Verify(context.Background(), p))
	assert.Equal(t, []string{"https://echo-a.test"}, p.navigated, "should stop at the first confirming endpoint")
}

func TestVerifyFallsThroughBrokenEndpoints(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{
		bodies: map[string]string{
			"https://echo-b.test": "85.142.1.1",
		},
		navErrs: map[string]error{
			"https://echo-a.test": errors.New("tunnel reset"),
		},
	}

	c := New(proxy, login, zap.NewNop())
	require.NoError(t, c.Verify(context.Background(), p))
	assert.Contains(t, p.navigated, "https://echo-b.test")
}

func TestVerifyIgnoresNonIPBodies(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{bodies: map[string]string{
		"https://echo-a.test": "<html>captcha</html>",
		"https://echo-b.test": "85.142.200.3",
	}}

	c := New(proxy, login, zap.NewNop())
	require.NoError(t, c.Verify(context.Background(), p))
}

func TestVerifyProvisionalOnSiteReachable(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{
		bodies: map[string]string{
			"https://echo-a.test": "203.0.113.9",
			"https://echo-b.test": "203.0.113.9",
		},
		location: "https://www.ozon.ru/?landing=1",
	}

	c := New(proxy, login, zap.NewNop())
	require.NoError(t, c.Verify(context.Background(), p))
	assert.Contains(t, p.navigated, login.SiteURL)
}

func TestVerifyFailsWhenNothingMatches(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{
		bodies: map[string]string{
			"https://echo-a.test": "203.0.113.9",
			"https://echo-b.test": "203.0.113.9",
		},
		location: "https://blocked.example/denied",
	}

	c := New(proxy, login, zap.NewNop())
	err := c.Verify(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy verification failed")
}

func TestVerifyFailsWhenSiteUnreachable(t *testing.T) {
	proxy, login := testConfigs()
	p := &stubProber{
		navErrs: map[string]error{
			"https://echo-a.test": errors.New("down"),
			"https://echo-b.test": errors.New("down"),
			"https://www.ozon.ru": errors.New("tunnel refused"),
		},
	}

	c := New(proxy, login, zap.NewNop())
	err := c.Verify(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site unreachable")
}
