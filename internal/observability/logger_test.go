// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

// testBuffer adapts a bytes.Buffer to the WriteSyncer the console core wants.
type testBuffer struct {
	bytes.Buffer
}

func (b *testBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {

	t.Run("console format colorizes the level", func(t *testing.T) {
		ResetForTest()
		var buf testBuffer

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		}
		Initialize(cfg, zapcore.Lock(&buf))
		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset, "Output should contain the reset color code")
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		ResetForTest()
		var buf testBuffer

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		Initialize(cfg, zapcore.Lock(&buf))
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "warn", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("writes to a log file if configured", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "onboard-test.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1, // 1 MB
		}
		var buf testBuffer
		Initialize(cfg, zapcore.Lock(&buf))
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.", "Log file should contain the message")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		var buf testBuffer

		Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"}, zapcore.Lock(&buf))
		logger1 := GetLogger()

		// Second call must be ignored.
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"}, zapcore.Lock(&buf))
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")

		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		var buf testBuffer
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, zapcore.Lock(&buf))

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
