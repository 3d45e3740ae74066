package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded in order when Load is called without arguments.
var DefaultEnvFiles = []string{".env.local", ".env"}

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Database  Database
	Redis     Redis
	Local     Local
	TMDB      TMDB
	Jikan     Jikan
	HTTP      HTTPClient
	Enrich    Enrich
	Observers Observers
}

type Database struct {
	URL string `env:"DATABASE_URL,required"`
}

type Redis struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	Host     string `env:"R_HOST" envDefault:"redis"`
	Port     string `env:"R_PORT" envDefault:"6379"`
	Password string `env:"R_PASS"`
	DB       int    `env:"R_DB" envDefault:"0"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Local struct {
	Dir string `env:"LOCAL_CACHE_DIR" envDefault:"./data/local"`
}

type TMDB struct {
	APIKey  string `env:"TMDB_API_KEY"`
	BaseURL string `env:"TMDB_BASE_URL" envDefault:"https://api.themoviedb.org/3"`
}

type Jikan struct {
	BaseURL string `env:"JIKAN_BASE_URL" envDefault:"https://api.jikan.moe/v4"`
}

// HTTPClient configures the outbound detail clients. RateLimit is the spacing
// between requests once the burst is spent; for the movie client the burst is
// Enrich.BatchSize, so one enrichment chunk goes out at once.
type HTTPClient struct {
	Timeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	RateLimit  time.Duration `env:"HTTP_RATE_LIMIT" envDefault:"1s"`
	MaxRetries int           `env:"HTTP_MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"HTTP_RETRY_DELAY" envDefault:"2s"`
	UserAgent  string        `env:"HTTP_USER_AGENT" envDefault:"StreamFlux/1.0"`
	CacheTTL   time.Duration `env:"DETAILS_CACHE_TTL" envDefault:"24h"`
}

type Enrich struct {
	BatchSize int `env:"ENRICH_BATCH_SIZE" envDefault:"5"`
}

// Observers bounds the per-identity favorites views kept in memory.
type Observers struct {
	IdleTTL time.Duration `env:"OBSERVER_IDLE_TTL" envDefault:"10m"`
	Max     int           `env:"OBSERVER_MAX" envDefault:"256"`
}

// Load reads the given env files (or DefaultEnvFiles) into the process
// environment and parses the configuration from it. Missing env files are
// not an error; the system environment is used as is.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Enrich.BatchSize <= 0 {
		return nil, fmt.Errorf("ENRICH_BATCH_SIZE must be positive, got %d", cfg.Enrich.BatchSize)
	}
	if cfg.Observers.Max < 0 {
		return nil, fmt.Errorf("OBSERVER_MAX must not be negative, got %d", cfg.Observers.Max)
	}
	if cfg.HTTP.MaxRetries <= 0 {
		cfg.HTTP.MaxRetries = 1
	}

	return cfg, nil
}

// GetEnv retrieves values from environment files based on the key it matches,
// returns a string (value) if not empty
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
