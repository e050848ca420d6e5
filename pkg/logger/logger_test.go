package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json stdout", func(t *testing.T) {
		log, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, log.GetLevel())
		assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "bot.log")
		log, err := NewLogger(&config.LoggingConfig{
			Level:  "info",
			Output: "file",
			File:   config.FileConfig{Path: path, MaxSize: 1},
		})
		require.NoError(t, err)
		assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestNewLogger_DefaultFields(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Fields: map[string]string{"service": "lbot", "chat_id": "unset"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	WithMessage(log, -100, 7, "42").Info("Command executed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lbot", entry["service"])
	// call site fields win over defaults
	assert.Equal(t, float64(-100), entry["chat_id"])
	assert.Equal(t, "42", entry["author_id"])
	assert.Equal(t, "Command executed", entry["message"])
}
