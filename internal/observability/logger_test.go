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

	"github.com/argoseyes/uxprobe/internal/config"
)

// syncBuffer adapts a bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (s *syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format produces readable output", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		cfg := config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "TestService"}
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "output should contain the log level")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, "TestService.", "output should contain the service name")
	})

	t.Run("json format produces structured output", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("writes to a log file if configured", func(t *testing.T) {
		ResetForTest()
		logPath := filepath.Join(t.TempDir(), "uxprobe-test.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logPath,
			MaxSize: 1,
		}
		var buf syncBuffer
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("only initializes once", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, zapcore.Lock(&buf))
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.Lock(&buf))
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
		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "GlobalTest"}, zapcore.Lock(&buf))

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
