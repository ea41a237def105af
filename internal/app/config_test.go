package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("ALLOWED_HOST_PATTERNS", `example\.org, .*\.example\.org ,`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, time.Hour, cfg.RemindersInterval)
	assert.Equal(t, 24*time.Hour, cfg.RemindersMinAge)
	assert.Equal(t, 100, cfg.RemindersBatchSize)
	assert.Equal(t, "form-control", cfg.DefaultFormInputClass)
	assert.Equal(t, []string{`example\.org`, `.*\.example\.org`}, cfg.HostPatterns())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestHostPatternsEmpty(t *testing.T) {
	var cfg *Config
	assert.Nil(t, cfg.HostPatterns())
	assert.Nil(t, (&Config{}).HostPatterns())
}
