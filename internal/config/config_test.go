package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("SLA_BUSINESS_DAYS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Addr() != cfg.App.Host+":"+cfg.App.Port {
		t.Fatalf("unexpected addr %s", cfg.App.Addr())
	}
	if len(cfg.SLA.BusinessDays) != 5 {
		t.Fatalf("expected weekday default, got %v", cfg.SLA.BusinessDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_BUSINESS_DAYS", "mon, wed ,,fri")
	t.Setenv("SLA_HOLIDAYS", "2026-12-25")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("WORKER_SEND_TIMEOUT_SECONDS", "3")
	t.Setenv("APP_PUBLIC_BASE_URL", "https://desk.example.com/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.SLA.BusinessDays; len(got) != 3 || got[1] != "wed" {
		t.Fatalf("unexpected business days %v", got)
	}
	if len(cfg.SLA.Holidays) != 1 {
		t.Fatalf("unexpected holidays %v", cfg.SLA.Holidays)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Fatalf("invalid int should fall back, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.SendTimeout != 3*time.Second {
		t.Fatalf("unexpected send timeout %s", cfg.Worker.SendTimeout)
	}
	if cfg.App.PublicBaseURL != "https://desk.example.com" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.App.PublicBaseURL)
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid REDIS_DB")
	}
}
