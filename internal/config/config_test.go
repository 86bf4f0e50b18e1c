package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://localhost/coffee")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, MaxPageSize, cfg.PageSize)
	assert.Equal(t, 60*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 5, cfg.MaxIdleTurns)
	assert.Equal(t, 24*time.Hour, cfg.ReminderInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:3000", cfg.WebUIBaseURL)
	assert.False(t, cfg.WebEnabled())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PAGE_SIZE", "2")
	t.Setenv("TURN_TIMEOUT", "90s")
	t.Setenv("LOG_DEV", "true")
	t.Setenv("DISCORD_CLIENT_ID", "id")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")
	t.Setenv("DISCORD_REDIRECT_URI", "https://coffee.example.com/api/auth/callback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.PageSize)
	assert.Equal(t, 90*time.Second, cfg.TurnTimeout)
	assert.True(t, cfg.LogDev)
	assert.True(t, cfg.WebEnabled())
	assert.Equal(t, "https://coffee.example.com", cfg.WebUIBaseURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"DISCORD_TOKEN": "", "DATABASE_URL": "x"}},
		{"missing database", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": ""}},
		{"bad page size", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": "x", "PAGE_SIZE": "zero"}},
		{"negative page size", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": "x", "PAGE_SIZE": "-1"}},
		{"page size too large", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": "x", "PAGE_SIZE": "8"}},
		{"bad timeout", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": "x", "TURN_TIMEOUT": "soon"}},
		{"secret missing", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_URL": "x", "DISCORD_CLIENT_ID": "id", "DISCORD_CLIENT_SECRET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
