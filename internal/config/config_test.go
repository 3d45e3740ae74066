package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/streamflux")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Enrich.BatchSize != 5 {
		t.Errorf("Enrich.BatchSize = %d, want 5", cfg.Enrich.BatchSize)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 30s", cfg.HTTP.Timeout)
	}
	if cfg.Redis.Addr() != "redis:6379" {
		t.Errorf("Redis.Addr() = %q, want redis:6379", cfg.Redis.Addr())
	}
	if cfg.Jikan.BaseURL != "https://api.jikan.moe/v4" {
		t.Errorf("Jikan.BaseURL = %q", cfg.Jikan.BaseURL)
	}
	if cfg.Observers.IdleTTL != 10*time.Minute {
		t.Errorf("Observers.IdleTTL = %v, want 10m", cfg.Observers.IdleTTL)
	}
	if cfg.Observers.Max != 256 {
		t.Errorf("Observers.Max = %d, want 256", cfg.Observers.Max)
	}
}

func TestParseRejectsNegativeObserverMax(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/streamflux")
	t.Setenv("OBSERVER_MAX", "-1")

	if _, err := Parse(); err == nil {
		t.Fatal("Parse() expected error for OBSERVER_MAX=-1")
	}
}

func TestParseRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	if _, err := Parse(); err == nil {
		t.Fatal("Parse() expected error without DATABASE_URL")
	}
}

func TestParseRejectsNonPositiveBatchSize(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/streamflux")
	t.Setenv("ENRICH_BATCH_SIZE", "0")

	if _, err := Parse(); err == nil {
		t.Fatal("Parse() expected error for ENRICH_BATCH_SIZE=0")
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	content := "DATABASE_URL=postgres://file/streamflux\nENRICH_BATCH_SIZE=3\nREDIS_ENABLED=false\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// godotenv never overrides variables that are already set, so clear them
	// and let t.Setenv restore the originals afterwards.
	for _, key := range []string{"DATABASE_URL", "ENRICH_BATCH_SIZE", "REDIS_ENABLED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://file/streamflux" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Enrich.BatchSize != 3 {
		t.Errorf("Enrich.BatchSize = %d, want 3", cfg.Enrich.BatchSize)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false")
	}
}
