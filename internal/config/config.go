package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server settings in correct types
type Config struct {
	Port        string `env:"PORT" envDefault:"5000"`
	DownloadDir string `env:"DOWNLOAD_DIR" envDefault:"downloads"`
	TempDir     string `env:"TEMP_DIR" envDefault:"temp"`
	CookiesFile string `env:"COOKIES_FILE" envDefault:"cookies.txt"`
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS" envDefault:"3"`
	QueueTimeout      time.Duration `env:"QUEUE_TIMEOUT" envDefault:"10s"`
	ResolveTimeout    time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"30s"`
	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"30m"`

	DownloadTTL   time.Duration `env:"DOWNLOAD_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"100ms"`

	RateLimit  int           `env:"RATE_LIMIT" envDefault:"3"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"10m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
}

const maxPollInterval = 500 * time.Millisecond

// Load reads the environment. The returned notices describe values that
// were out of range and have been reset.
func Load() (*Config, []string, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, validate(cfg), nil
}

// Addr is the listen address derived from PORT.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// validate keeps the server from running with settings that would break it
func validate(cfg *Config) []string {
	var notices []string
	if cfg.MaxConcurrentJobs < 1 {
		notices = append(notices, "MAX_CONCURRENT_JOBS must be at least 1, resetting to 3")
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.RateLimit < 1 {
		notices = append(notices, "RATE_LIMIT must be at least 1, resetting to 3")
		cfg.RateLimit = 3
	}
	if cfg.RateWindow <= 0 {
		notices = append(notices, "RATE_WINDOW must be positive, resetting to 10m")
		cfg.RateWindow = 10 * time.Minute
	}
	if cfg.DownloadTTL <= 0 {
		notices = append(notices, "DOWNLOAD_TTL must be positive, resetting to 10m")
		cfg.DownloadTTL = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		notices = append(notices, "SWEEP_INTERVAL must be positive, resetting to 1m")
		cfg.SweepInterval = time.Minute
	}
	if cfg.PollInterval <= 0 || cfg.PollInterval > maxPollInterval {
		notices = append(notices, fmt.Sprintf("POLL_INTERVAL must be in (0, %s], resetting to 100ms", maxPollInterval))
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.QueueTimeout <= 0 {
		notices = append(notices, "QUEUE_TIMEOUT must be positive, resetting to 10s")
		cfg.QueueTimeout = 10 * time.Second
	}
	if cfg.ResolveTimeout <= 0 {
		notices = append(notices, "RESOLVE_TIMEOUT must be positive, resetting to 30s")
		cfg.ResolveTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		notices = append(notices, "FETCH_TIMEOUT must be positive, resetting to 30m")
		cfg.FetchTimeout = 30 * time.Minute
	}

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	return notices
}
