package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http://localhost:8000", cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Remote.WhatIfDebounce)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "prism:projects:changes", cfg.ChangeFeed.Channel)
	assert.Equal(t, "0 0 2 * * *", cfg.Worker.RefreshCron)
	assert.Equal(t, 30*time.Minute, cfg.ListView.IdleTTL)
	assert.Equal(t, 1000, cfg.ListView.MaxSessions)
	assert.False(t, cfg.HistoryEnabled())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PRISM_API_URL", "https://api.prism.test")
	t.Setenv("PRISM_PREDICT_RATE", "2.5")
	t.Setenv("PRISM_PREDICT_BURST", "4")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "https://api.prism.test", cfg.Remote.BaseURL)
	assert.InDelta(t, 2.5, cfg.Remote.PredictRate, 1e-9)
	assert.Equal(t, 4, cfg.Remote.PredictBurst)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.HistoryEnabled())
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("PRISM_API_TIMEOUT", "soon")
		_, err := Parse()
		assert.Error(t, err)
	})

	t.Run("negative rate", func(t *testing.T) {
		t.Setenv("PRISM_PREDICT_RATE", "-1")
		_, err := Parse()
		assert.ErrorContains(t, err, "PRISM_PREDICT_RATE")
	})
}

func TestValidate(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: "8080"}, Remote: RemoteConfig{BaseURL: " "}}
	assert.ErrorContains(t, cfg.Validate(), "PRISM_API_URL")

	cfg.Remote.BaseURL = "http://x"
	cfg.Server.Port = ""
	assert.ErrorContains(t, cfg.Validate(), "PORT")
}
