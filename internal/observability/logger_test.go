// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/capsolve-cli/internal/config"
)

// resetGlobalLogger is critical for test isolation, as the logger is a
// global singleton.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// newBufferedLogger initializes the global logger with its console stream
// directed into a buffer.
func newBufferedLogger(cfg config.LoggerConfig) *bytes.Buffer {
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {

	t.Run("console format produces a colorized single-line entry", func(t *testing.T) {
		resetGlobalLogger()
		buf := newBufferedLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		})

		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "output should contain the log level")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, "TestService.", "the name encoder appends a dot")
		assert.Contains(t, output, "\x1b[", "console level encoding is colorized")
	})

	t.Run("json format produces valid JSON", func(t *testing.T) {
		resetGlobalLogger()
		buf := newBufferedLogger(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level below threshold is suppressed", func(t *testing.T) {
		resetGlobalLogger()
		buf := newBufferedLogger(config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("too quiet")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		resetGlobalLogger()
		buf := newBufferedLogger(config.LoggerConfig{Level: "shouting", Format: "json"})

		GetLogger().Debug("suppressed")
		GetLogger().Info("visible")

		assert.NotContains(t, buf.String(), "suppressed")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("writes JSON to the log file when configured", func(t *testing.T) {
		resetGlobalLogger()
		logPath := filepath.Join(t.TempDir(), "capsolve.log")

		newBufferedLogger(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logPath,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		assert.Contains(t, string(content), `"level":"ERROR"`, "file output is always JSON")
	})

	t.Run("initializes only once", func(t *testing.T) {
		resetGlobalLogger()
		buf := newBufferedLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"})

		// The second call must be ignored entirely.
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"},
			zapcore.AddSync(&bytes.Buffer{}))

		GetLogger().Info("test")
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger before initialization", func(t *testing.T) {
		resetGlobalLogger()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		resetGlobalLogger()
		newBufferedLogger(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})

		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestSyncWithoutLogger(t *testing.T) {
	resetGlobalLogger()
	// Must not panic.
	Sync()
}
