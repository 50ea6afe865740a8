package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"studykit-backend/internal/jobs"
	"studykit-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string
	DBMaxConns      int
	LimitsFile      string
	JWTSecret       string

	KeyTTL        time.Duration
	JobTTL        time.Duration
	BufferTTL     time.Duration
	ContentTTL    time.Duration
	SweepInterval time.Duration
	ArenaGrace    time.Duration
	ArenaCipher   string

	QueueConcurrency map[jobs.Kind]int

	UploadRatePerMinute float64
	UploadBurst         int

	NotifyQueueURL string
	AWSRegion      string
}

const (
	DefaultKeyTTL        = 3 * time.Minute
	DefaultJobTTL        = 5 * time.Minute
	DefaultContentTTL    = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultArenaGrace    = 5 * time.Second
	DefaultConcurrency   = 2
)

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience. Existing variables win.
	if files := existing(".env", "cmd/.env"); len(files) > 0 {
		_ = godotenv.Load(files...)
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url.missing", map[string]any{"env": env})
	}

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,
		DBMaxConns:      getInt("DB_MAX_CONNS", 4),
		LimitsFile:      getEnv("LIMITS_FILE", ""),
		JWTSecret:       os.Getenv("JWT_SECRET"),

		KeyTTL:        getDuration("KEY_TTL", DefaultKeyTTL),
		JobTTL:        getDuration("JOB_TTL", DefaultJobTTL),
		BufferTTL:     getDuration("BUFFER_TTL", DefaultJobTTL),
		ContentTTL:    getDuration("CONTENT_TTL", DefaultContentTTL),
		SweepInterval: getDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		ArenaGrace:    getDuration("ARENA_GRACE", DefaultArenaGrace),
		ArenaCipher:   strings.ToLower(getEnv("ARENA_CIPHER", "aes-256-gcm")),

		QueueConcurrency: map[jobs.Kind]int{
			jobs.KindPDF:         getInt("QUEUE_CONCURRENCY_PDF", DefaultConcurrency),
			jobs.KindSlideDeck:   getInt("QUEUE_CONCURRENCY_SLIDEDECK", DefaultConcurrency),
			jobs.KindSpreadsheet: getInt("QUEUE_CONCURRENCY_SPREADSHEET", DefaultConcurrency),
		},

		UploadRatePerMinute: getFloat("UPLOAD_RATE_PER_MINUTE", 10),
		UploadBurst:         getInt("UPLOAD_BURST", 5),

		NotifyQueueURL: getEnv("NOTIFY_SQS_QUEUE_URL", ""),
		AWSRegion:      getEnv("AWS_REGION", ""),
	}
	cfg.clamp()
	return cfg
}

// clamp keeps keys from outliving the buffers and job records they protect.
func (c *Config) clamp() {
	if c.KeyTTL > c.BufferTTL {
		telemetry.Warn("config.key_ttl.clamped", map[string]any{
			"key_ttl":    c.KeyTTL.String(),
			"buffer_ttl": c.BufferTTL.String(),
		})
		c.KeyTTL = c.BufferTTL
	}
	if c.KeyTTL > c.JobTTL {
		c.KeyTTL = c.JobTTL
	}
}

func existing(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "value": raw})
		return def
	}
	return d
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": raw})
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		telemetry.Warn("config.invalid_float", map[string]any{"key": key, "value": raw})
		return def
	}
	return f
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}
