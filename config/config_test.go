package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "VOTE_WEIGHTS", "PRESENCE_IDLE_MINUTES", "RESET_HOUR", "RESET_TZ", "MONGO_URI", "CORS_ORIGINS", "TRUSTED_PROXIES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, [3]int{5, 3, 1}, cfg.VoteWeights)
	assert.Equal(t, 2*time.Hour, cfg.PresenceIdle)
	assert.Equal(t, 2, cfg.ResetHour)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.MongoURI)
	assert.Empty(t, cfg.TrustedProxies)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("VOTE_WEIGHTS", "3, 2, 1")
	t.Setenv("PRESENCE_IDLE_MINUTES", "30")
	t.Setenv("RESET_HOUR", "99")
	t.Setenv("RESET_TZ", "UTC")
	t.Setenv("GATE_LOCATION", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, [3]int{3, 2, 1}, cfg.VoteWeights)
	assert.Equal(t, 30*time.Minute, cfg.PresenceIdle)
	assert.Equal(t, 23, cfg.ResetHour)
	assert.Equal(t, time.UTC, cfg.ResetZone)
	assert.True(t, cfg.GateLocation)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoad_BadWeights(t *testing.T) {
	t.Setenv("VOTE_WEIGHTS", "5,3")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("VOTE_WEIGHTS", "5,x,1")
	_, err = Load()
	assert.Error(t, err)
}

func TestCloudinaryEnabled(t *testing.T) {
	cfg := &Config{CloudinaryCloud: "demo", CloudinaryKey: "k"}
	assert.False(t, cfg.CloudinaryEnabled())
	cfg.CloudinarySecret = "s"
	assert.True(t, cfg.CloudinaryEnabled())
}
