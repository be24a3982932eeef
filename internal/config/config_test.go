package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://127.0.0.1:8000/")
	t.Setenv("AUTH_MODE", "Bearer")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8000", cfg.Backend.BaseURL)
	require.Equal(t, ModeBearer, cfg.Auth.Mode)
	require.Equal(t, 5*time.Second, cfg.Backend.VerifyTimeout)
	require.Equal(t, 10*time.Second, cfg.Backend.RefreshTimeout)
	require.Equal(t, 24*time.Hour, cfg.Auth.RefreshInterval)
	require.Equal(t, 5*time.Second, cfg.Membership.TTL)
	require.True(t, cfg.Auth.ForbiddenLogsOut)
	require.Equal(t, "/api/membership/", cfg.Endpoints.Membership)
}

func TestLoadConfig_RequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("DEV_BACKEND_ENABLED", "false")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Backend:    BackendConfig{BaseURL: "http://x"},
			Auth:       AuthConfig{Mode: ModeToken, RefreshInterval: time.Hour},
			Store:      StoreConfig{Driver: "memory"},
			Membership: MembershipConfig{TTL: time.Second},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Auth.Mode = "basic"
	require.Error(t, c.Validate())

	c = base()
	c.Store.Driver = "redis"
	require.Error(t, c.Validate(), "redis driver without host must fail")
	c.Redis.Host = "localhost"
	require.NoError(t, c.Validate())

	c = base()
	c.RateLimit.UseRedis = true
	require.Error(t, c.Validate(), "shared limiter needs Redis")

	c = base()
	c.Backend.BaseURL = ""
	c.DevBackend.Enabled = true
	require.NoError(t, c.Validate())
}
