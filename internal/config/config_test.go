package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAPIRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lifesim")
	t.Setenv("SUPABASE_URL", "https://demo.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
}

func TestLoadAPIDefaults(t *testing.T) {
	setAPIRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("LIFESIM_API_ADDR", "")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "https://demo.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.AutoMigrate)
	assert.True(t, cfg.SeedDefaults)
	assert.Equal(t, 1024, cfg.TokenCacheSize)
	assert.Equal(t, time.Minute, cfg.TokenCacheTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadAPIOverrides(t *testing.T) {
	setAPIRequired(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LIFESIM_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LIFESIM_AUTO_MIGRATE", "false")
	t.Setenv("LIFESIM_TOKEN_CACHE_SIZE", "-3")
	t.Setenv("LIFESIM_TOKEN_CACHE_TTL", "5m")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, 1024, cfg.TokenCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.TokenCacheTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadAPIRequiresSettings(t *testing.T) {
	for _, missing := range []string{"DATABASE_URL", "SUPABASE_URL", "SUPABASE_ANON_KEY"} {
		t.Run(missing, func(t *testing.T) {
			setAPIRequired(t)
			t.Setenv(missing, "")
			_, err := LoadAPIFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lifesim")
	t.Setenv("LIFESIM_DAILY_MESSAGE_LIMIT", "3")
	t.Setenv("LIFESIM_ACTIVE_WINDOW", "nonsense")
	t.Setenv("LIFESIM_WORKER_RUN_ONCE", " Advisory ")

	cfg, err := LoadWorkerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "0 0 3 1 * *", cfg.DepreciationSchedule)
	assert.Equal(t, "0 0 9 * * *", cfg.AdvisorySchedule)
	assert.Equal(t, 720*time.Hour, cfg.ActiveWindow)
	assert.Equal(t, 3, cfg.DailyMessageLimit)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, "advisory", cfg.RunOnce)
}

func TestLoadWorkerRejectsUnknownRunOnce(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lifesim")
	t.Setenv("LIFESIM_WORKER_RUN_ONCE", "market")
	_, err := LoadWorkerFromEnv()
	assert.Error(t, err)
}

func TestLoadCLI(t *testing.T) {
	t.Setenv("LSIM_API_BASE_URL", "https://api.example/")
	assert.Equal(t, "https://api.example", LoadCLIFromEnv().APIBaseURL)
}
