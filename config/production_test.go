package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadProductionConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Attribution.Window)
	assert.Equal(t, 50, cfg.Attribution.PageSize)
	assert.Equal(t, 1000, cfg.Attribution.MaxOffset)
	assert.Equal(t, "mock", cfg.OrderFeed.Provider)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Contains(t, cfg.Database.DSN(), "dbname=attribution")
}

func TestLoadProductionConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORRELATION_SELLER_IDS", " s1, ,s2 ")
	t.Setenv("CORRELATION_SCHEDULER_ENABLED", "true")
	t.Setenv("ATTRIBUTION_WINDOW", "72h")
	t.Setenv("ORDER_FEED_PAGE_SIZE", "not-a-number")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s2"}, cfg.Scheduler.SellerIDs)
	assert.Equal(t, 72*time.Hour, cfg.Attribution.Window)
	assert.Equal(t, 50, cfg.Attribution.PageSize, "unparsable values fall back to the default")
}

func TestLoadProductionConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing db password", map[string]string{"DB_PASSWORD": ""}, "DB_PASSWORD is required"},
		{"short jwt secret", map[string]string{"JWT_SECRET_KEY": "short"}, "JWT_SECRET_KEY must be at least 32 characters long"},
		{"relative fallback", map[string]string{"REDIRECT_FALLBACK_URL": "/home"}, "REDIRECT_FALLBACK_URL must be an absolute URL"},
		{"bad item pattern", map[string]string{"ITEM_ID_PATTERN": "("}, "ITEM_ID_PATTERN is not a valid expression"},
		{"http feed without url", map[string]string{"ORDER_FEED_PROVIDER": "http"}, "ORDER_FEED_BASE_URL must be a valid URL"},
		{"scheduler without sellers", map[string]string{"CORRELATION_SCHEDULER_ENABLED": "true"}, "CORRELATION_SELLER_IDS is required"},
		{"offset below page", map[string]string{"ORDER_FEED_MAX_OFFSET": "10"}, "ORDER_FEED_MAX_OFFSET must be at least ORDER_FEED_PAGE_SIZE"},
		{"default limit above max", map[string]string{"CORRELATION_DEFAULT_ORDER_LIMIT": "9000"}, "CORRELATION_DEFAULT_ORDER_LIMIT must be between 1"},
		{"zero run timeout", map[string]string{"CORRELATION_RUN_TIMEOUT": "0s"}, "CORRELATION_RUN_TIMEOUT must be positive"},
		{"run outlives lease", map[string]string{"CORRELATION_RUN_TIMEOUT": "20m", "CORRELATION_LOCK_TTL": "15m"}, "CORRELATION_RUN_TIMEOUT must be shorter than CORRELATION_LOCK_TTL"},
		{"run equals lease", map[string]string{"CORRELATION_RUN_TIMEOUT": "15m"}, "CORRELATION_RUN_TIMEOUT must be shorter than CORRELATION_LOCK_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadProductionConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
