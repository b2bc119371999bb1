package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeOffline, c.Mode)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 8*time.Hour, c.TokenTTL)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3010"}, c.CORSOrigins())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("AUTH_HMAC_SECRET", "prod-secret")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://db/exams")
	t.Setenv("SWEEP_INTERVAL", "0s")
	t.Setenv("CORS_ORIGINS_ONLINE", "https://a.example,https://b.example")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, c.Mode)
	assert.Equal(t, "postgres://db/exams", c.DBDSN)
	assert.Zero(t, c.SweepInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins())
}

func TestFromEnvRejects(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		t.Setenv("MODE", "hybrid")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "unknown mode")
	})
	t.Run("default secret online", func(t *testing.T) {
		t.Setenv("MODE", "online")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "AUTH_HMAC_SECRET")
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("TOKEN_TTL", "soon")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "parse env")
	})
}
