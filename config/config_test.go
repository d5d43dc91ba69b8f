package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PASSWORD_MAX_ATTEMPTS", "7")
	t.Setenv("GALLERY_SESSION_TTL", "90m")
	t.Setenv("AUTO_START_SELECTION", "true")
	t.Setenv("PUBLIC_RATE_LIMIT_RPS", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.PasswordMaxAttempts)
	assert.Equal(t, 90*time.Minute, cfg.GallerySessionTTL)
	assert.True(t, cfg.AutoStartSelection)
	assert.Equal(t, 20, cfg.PublicRateLimitRPS, "unparsable values fall back to the default")
	assert.Equal(t, 30*time.Second, cfg.PasswordLockoutBase)
	assert.Equal(t, 256, cfg.NotifyQueueSize)
}

func TestConfigString_RedactsSecrets(t *testing.T) {
	cfg := Config{
		JWTSecret:            "owner-signing-secret",
		GallerySessionSecret: "abc",
		DBPassword:           "hunter22",
	}

	out := cfg.String()
	assert.NotContains(t, out, "owner-signing-secret")
	assert.Contains(t, out, "****cret")
	assert.Contains(t, out, "Secret: ****\n")
	assert.NotContains(t, out, "hunter22")
}
