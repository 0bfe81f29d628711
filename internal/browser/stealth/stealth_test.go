// File: internal/browser/stealth/stealth_test.go

package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScriptMasksAutomationSignals(t *testing.T) {
	script := Script()
	assert.Contains(t, script, "webdriver")
	assert.Contains(t, script, "plugins")
	assert.Contains(t, script, "languages")
	assert.Contains(t, script, "ru-RU")
}

func TestDefaultPersona(t *testing.T) {
	p := DefaultPersona
	assert.Contains(t, p.UserAgent, "Chrome/")
	assert.NotContains(t, p.UserAgent, "Headless", "the persona must not betray headless mode")
	assert.Equal(t, "Europe/Moscow", p.Timezone)
	assert.Equal(t, "ru-RU", p.Locale)
	assert.Equal(t, "Win32", p.Platform)
}

func TestApplyBuildsTasks(t *testing.T) {
	tasks := Apply(DefaultPersona, zap.NewNop())
	assert.NotEmpty(t, tasks)
}
