package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: debug
jwt:
  secret: dev-secret
  expire_hours: 24
storage:
  type: local
  local_path: `+filepath.Join(t.TempDir(), "uploads")+`
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 0.5, cfg.Grading.ShortAnswerPartialRatio)
	assert.Equal(t, 3, cfg.Notification.MaxAttempts)
	assert.Equal(t, 3600, cfg.Cache.VerifyTTLSeconds)
	assert.Equal(t, "lms.events", cfg.RabbitMQ.Exchange)
	assert.DirExists(t, cfg.Storage.LocalPath)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Mode: "release"}, JWT: JWTConfig{Secret: "short"}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Grading: GradingConfig{ShortAnswerPartialRatio: 1.5}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Notification.MaxAttempts)
}
