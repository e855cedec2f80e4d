package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "OPENAI_MODEL", "AI_BATCH_SIZE", "AI_RATE_LIMIT", "ABOVE_BUDGET", "JOB_TTL", "WORKER_COUNT"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.Port != "8090" {
		t.Fatalf("expected port 8090, got %s", cfg.Port)
	}
	if cfg.AI.BatchSize != 5 {
		t.Fatalf("expected batch size 5, got %d", cfg.AI.BatchSize)
	}
	if cfg.Windows.AboveBudget != 600 {
		t.Fatalf("expected above budget 600, got %d", cfg.Windows.AboveBudget)
	}
	if cfg.JobTTL != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", cfg.JobTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("OPENAI_MODEL", "qwen-vl")
	t.Setenv("AI_RATE_LIMIT", "0.5")
	t.Setenv("AI_BATCH_SIZE", "0")
	t.Setenv("AI_VISION", "true")
	t.Setenv("BELOW_BUDGET", "300")
	t.Setenv("JOB_TTL", "15m")
	t.Setenv("WORKER_COUNT", "-1")

	cfg := Load()
	if cfg.Port != "9000" || cfg.AI.Model != "qwen-vl" {
		t.Fatalf("unexpected port/model: %s %s", cfg.Port, cfg.AI.Model)
	}
	if cfg.AI.RateLimit != 0.5 {
		t.Fatalf("expected rate limit 0.5, got %v", cfg.AI.RateLimit)
	}
	if cfg.AI.BatchSize != 5 {
		t.Fatalf("expected non-positive batch size to fall back to 5, got %d", cfg.AI.BatchSize)
	}
	if !cfg.AI.Vision {
		t.Fatal("expected vision enabled")
	}
	if cfg.Windows.BelowBudget != 300 {
		t.Fatalf("expected below budget 300, got %d", cfg.Windows.BelowBudget)
	}
	if cfg.JobTTL != 15*time.Minute {
		t.Fatalf("expected 15m ttl, got %s", cfg.JobTTL)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected worker count fallback 2, got %d", cfg.WorkerCount)
	}
}

func TestValidate(t *testing.T) {
	base := Load()

	bad := base
	bad.Port = "http"
	if bad.Validate() == nil {
		t.Fatal("expected error for non-numeric port")
	}

	bad = base
	bad.AI.Model = ""
	if bad.Validate() == nil {
		t.Fatal("expected error for missing model")
	}

	bad = base
	bad.PresetsFile, bad.PresetsURL = "", ""
	if bad.Validate() == nil {
		t.Fatal("expected error without a preset store")
	}
}
