package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	CORSOrigins     []string
	AutoMigrate     bool
	SeedDefaults    bool
	TokenCacheSize  int
	TokenCacheTTL   time.Duration
	ExpoPushURL     string
	LogLevel        slog.Level
}

type WorkerConfig struct {
	DatabaseURL          string
	DepreciationSchedule string
	AdvisorySchedule     string
	ActiveWindow         time.Duration
	DailyMessageLimit    int
	MetricsAddr          string
	RunOnce              string
	ExpoPushURL          string
	LogLevel             slog.Level
}

type CLIConfig struct {
	APIBaseURL string
}

// loadDotEnv reads .env from the working directory when present.
func loadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	loadDotEnv()
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("LIFESIM_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		CORSOrigins:     envListDefault("LIFESIM_CORS_ORIGINS", []string{"*"}),
		AutoMigrate:     envBoolDefault("LIFESIM_AUTO_MIGRATE", true),
		SeedDefaults:    envBoolDefault("LIFESIM_SEED_DEFAULTS", true),
		TokenCacheSize:  envIntDefault("LIFESIM_TOKEN_CACHE_SIZE", 1024),
		TokenCacheTTL:   envDurationDefault("LIFESIM_TOKEN_CACHE_TTL", time.Minute),
		ExpoPushURL:     strings.TrimSpace(os.Getenv("EXPO_PUSH_URL")),
		LogLevel:        envLogLevel(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	loadDotEnv()
	cfg := WorkerConfig{
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DepreciationSchedule: envDefault("LIFESIM_DEPRECIATION_SCHEDULE", "0 0 3 1 * *"),
		AdvisorySchedule:     envDefault("LIFESIM_ADVISORY_SCHEDULE", "0 0 9 * * *"),
		ActiveWindow:         envDurationDefault("LIFESIM_ACTIVE_WINDOW", 720*time.Hour),
		DailyMessageLimit:    envIntDefault("LIFESIM_DAILY_MESSAGE_LIMIT", 2),
		MetricsAddr:          envDefault("LIFESIM_METRICS_ADDR", ":9091"),
		RunOnce:              strings.ToLower(strings.TrimSpace(os.Getenv("LIFESIM_WORKER_RUN_ONCE"))),
		ExpoPushURL:          strings.TrimSpace(os.Getenv("EXPO_PUSH_URL")),
		LogLevel:             envLogLevel(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.RunOnce {
	case "", "depreciation", "backfill", "advisory":
	default:
		return cfg, fmt.Errorf("LIFESIM_WORKER_RUN_ONCE must be depreciation, backfill or advisory, got %q", cfg.RunOnce)
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	loadDotEnv()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("LSIM_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envLogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
