package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if got := cfg.Weights.Sum(); got != 1.0 {
		t.Errorf("default weights sum = %v, want 1.0", got)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Weights.Pain = 0.50 // sum now 1.20
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}
}

func TestValidateRejectsNegativeWeight(t *testing.T) {
	cfg := Default()
	cfg.Weights.Trend = -0.10
	cfg.Weights.Pain = 0.50 // keep the sum at 1.0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestValidateRejectsLambdaOutOfRange(t *testing.T) {
	for _, lambda := range []float64{-0.1, 1.5} {
		cfg := Default()
		cfg.MMR.Lambda = lambda
		if err := cfg.Validate(); err == nil {
			t.Errorf("lambda=%v: expected validation error", lambda)
		}
	}
}

func TestValidateRejectsRetentionShorterThanWindow(t *testing.T) {
	cfg := Default()
	cfg.History.WindowDays = 90
	cfg.History.RetentionDays = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention shorter than window")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("db_path: /tmp/scan.db\nmmr:\n  lambda: 0.5\n  top_k: 10\n  top_k_per_sector: 2\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("NEEDSCAN_MMR_LAMBDA", "0.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/scan.db" {
		t.Errorf("db_path = %q, want /tmp/scan.db", cfg.DBPath)
	}
	if cfg.MMR.TopK != 10 {
		t.Errorf("top_k = %d, want 10", cfg.MMR.TopK)
	}
	if cfg.MMR.Lambda != 0.9 {
		t.Errorf("env override lost: lambda = %v, want 0.9", cfg.MMR.Lambda)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("weights:\n  pain: 0.9\n  traction: 0.9\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject non-normalized weights")
	}
}
