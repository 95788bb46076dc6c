package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "STOREFRONT_CACHE_TTL_SECONDS", "TRANSITION_LOCK_TTL_SECONDS",
		"ACCESS_TOKEN_TTL_MINUTES", "BUSINESS_TIMEZONE", "STAFF_MAX_DISCOUNT_PERCENT", "RUN_MIGRATIONS", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, 30*time.Second, cfg.StorefrontCacheTTL())
	require.Equal(t, 10*time.Second, cfg.TransitionLockTTL())
	require.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	require.Equal(t, time.UTC, cfg.Location)
	require.Equal(t, 10.0, cfg.StaffMaxDiscountPercent)
	require.True(t, cfg.RunMigrations)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("BUSINESS_TIMEZONE", "Asia/Jakarta")
	t.Setenv("STOREFRONT_CACHE_TTL_SECONDS", "0")
	t.Setenv("TRANSITION_LOCK_TTL_SECONDS", "abc")
	t.Setenv("STAFF_MAX_DISCOUNT_PERCENT", "15.5")
	t.Setenv("RUN_MIGRATIONS", "off")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "Asia/Jakarta", cfg.Location.String())
	require.Equal(t, 30, cfg.StorefrontCacheTTLSeconds)
	require.Equal(t, 10, cfg.TransitionLockTTLSeconds)
	require.Equal(t, 15.5, cfg.StaffMaxDiscountPercent)
	require.False(t, cfg.RunMigrations)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
}
