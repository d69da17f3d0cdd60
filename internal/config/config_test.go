package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, StoreDynamo, cfg.NotificationStore)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 30, cfg.CleanupMaxAgeDays)
	assert.Equal(t, 256, cfg.WSSendBuffer)
	assert.True(t, cfg.RequireTokenOnAuthenticate)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiry)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NOTIFICATION_STORE", "MongoDB")
	t.Setenv("CLEANUP_INTERVAL", "90m")
	t.Setenv("WS_EVENTS_PER_SECOND", "2.5")
	t.Setenv("REQUIRE_TOKEN_ON_AUTHENTICATE", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("CLEANUP_MAX_AGE_DAYS", "not-a-number")

	cfg := Load()
	assert.Equal(t, StoreMongo, cfg.NotificationStore)
	assert.Equal(t, 90*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 2.5, cfg.WSEventsPerSecond)
	assert.False(t, cfg.RequireTokenOnAuthenticate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.CleanupMaxAgeDays)
}
