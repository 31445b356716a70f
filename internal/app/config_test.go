package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "salesdesk_session", cfg.SessionCookie)
	assert.Equal(t, 2*time.Second, cfg.AuthzSettleWait)
	assert.Equal(t, 10*time.Minute, cfg.AuthzSweepInterval)
	assert.Equal(t, int32(10), cfg.PGMaxConns)
	assert.Equal(t, time.Hour, cfg.StaticMaxAge)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadAuthzTimings(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("AUTHZ_SETTLE_WAIT", "-1s")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("AUTHZ_SETTLE_WAIT", "0s")
	t.Setenv("AUTHZ_SWEEP_INTERVAL", "0s")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
	assert.Equal(t, slog.LevelDebug, parseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
