package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TINY_TOKEN", "token_123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Tiny.BaseURL != "https://api.tiny.com.br/api2" {
		t.Fatalf("unexpected default base url: %q", cfg.Tiny.BaseURL)
	}
	if cfg.Sync.MaxPagesPerRun != 20 || cfg.Sync.PagePause != time.Second {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.DB.Host != "localhost" || cfg.DB.SSLMode != "require" {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected default log level: %q", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TINY_TOKEN", "token_123")
	t.Setenv("SYNC_MAX_PAGES_PER_RUN", "5")
	t.Setenv("SYNC_PAGE_PAUSE", "250ms")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_SSLMODE", "disable")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Sync.MaxPagesPerRun != 5 || cfg.Sync.PagePause != 250*time.Millisecond {
		t.Fatalf("unexpected sync overrides: %+v", cfg.Sync)
	}
	if cfg.DB.Host != "db.internal" || cfg.DB.SSLMode != "disable" {
		t.Fatalf("unexpected db overrides: %+v", cfg.DB)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TINY_TOKEN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TINY_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestLoadRejectsNonPositivePageCap(t *testing.T) {
	t.Setenv("TINY_TOKEN", "token_123")
	t.Setenv("SYNC_MAX_PAGES_PER_RUN", "0")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SYNC_MAX_PAGES_PER_RUN") {
		t.Fatalf("expected page cap validation error, got %v", err)
	}
}

func TestDSNRendersAllFields(t *testing.T) {
	dsn := DBConfig{
		Host: "db.internal", Port: "5433", Name: "erp",
		User: "sync", Password: "s3cret", SSLMode: "disable",
	}.DSN()
	want := "host=db.internal port=5433 dbname=erp user=sync password=s3cret sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected dsn: %q", dsn)
	}
}
