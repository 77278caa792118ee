// Package config loads and validates engine configuration. Invalid
// configuration is rejected at load time, before any scan work begins.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Weights combines the per-signal contributions to raw priority.
// They must sum to 1.0 within weightEpsilon.
type Weights struct {
	Pain     float64 `yaml:"pain" json:"pain"`
	Traction float64 `yaml:"traction" json:"traction"`
	Novelty  float64 `yaml:"novelty" json:"novelty"`
	WTP      float64 `yaml:"wtp" json:"wtp"`
	Trend    float64 `yaml:"trend" json:"trend"`
}

const weightEpsilon = 1e-6

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Pain + w.Traction + w.Novelty + w.WTP + w.Trend
}

// MMRConfig controls the diversity reranker.
type MMRConfig struct {
	Lambda        float64 `yaml:"lambda" json:"lambda"`
	TopK          int     `yaml:"top_k" json:"top_k"`
	TopKPerSector int     `yaml:"top_k_per_sector" json:"top_k_per_sector"`
	BySector      bool    `yaml:"by_sector" json:"by_sector"`
}

// HistoryConfig controls the history ledger window, retention, and the
// similarity thresholds used to flag repeats.
type HistoryConfig struct {
	WindowDays         int     `yaml:"window_days" json:"window_days"`
	RetentionDays      int     `yaml:"retention_days" json:"retention_days"`
	Alpha              float64 `yaml:"alpha" json:"alpha"`
	RecurringThreshold float64 `yaml:"recurring_threshold" json:"recurring_threshold"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold" json:"duplicate_threshold"`
}

// WorkerConfig controls the claim loop and heartbeat timing.
type WorkerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period" json:"heartbeat_period"`
	StaleThreshold  time.Duration `yaml:"stale_threshold" json:"stale_threshold"`
	SweepSchedule   string        `yaml:"sweep_schedule" json:"sweep_schedule"`
}

// QuotaConfig holds the free-plan limits. Premium is unlimited.
type QuotaConfig struct {
	FreeScansPerDay    int `yaml:"free_scans_per_day" json:"free_scans_per_day"`
	FreeInsightsPerRun int `yaml:"free_insights_per_run" json:"free_insights_per_run"`
}

// Config is the full engine configuration.
type Config struct {
	DBPath     string        `yaml:"db_path" json:"db_path"`
	ServerAddr string        `yaml:"server_addr" json:"server_addr"`
	LogLevel   string        `yaml:"log_level" json:"log_level"`
	Weights    Weights       `yaml:"weights" json:"weights"`
	MMR        MMRConfig     `yaml:"mmr" json:"mmr"`
	History    HistoryConfig `yaml:"history" json:"history"`
	Worker     WorkerConfig  `yaml:"worker" json:"worker"`
	Quota      QuotaConfig   `yaml:"quota" json:"quota"`
	HeavyTopK  int           `yaml:"heavy_top_k" json:"heavy_top_k"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		DBPath:     "needscan.db",
		ServerAddr: ":8080",
		LogLevel:   "info",
		Weights: Weights{
			Pain:     0.30,
			Traction: 0.25,
			Novelty:  0.15,
			WTP:      0.20,
			Trend:    0.10,
		},
		MMR: MMRConfig{
			Lambda:        0.7,
			TopK:          30,
			TopKPerSector: 2,
			BySector:      false,
		},
		History: HistoryConfig{
			WindowDays:         90,
			RetentionDays:      180,
			Alpha:              0.3,
			RecurringThreshold: 0.90,
			DuplicateThreshold: 0.985,
		},
		Worker: WorkerConfig{
			PollInterval:    5 * time.Second,
			HeartbeatPeriod: 30 * time.Second,
			StaleThreshold:  5 * time.Minute,
			SweepSchedule:   "0 3 * * *",
		},
		Quota: QuotaConfig{
			FreeScansPerDay:    1,
			FreeInsightsPerRun: 10,
		},
		HeavyTopK: 5,
	}
}

// Load reads the config file at path (if non-empty), applies NEEDSCAN_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEEDSCAN_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("NEEDSCAN_SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
	if v := os.Getenv("NEEDSCAN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NEEDSCAN_MMR_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MMR.Lambda = f
		}
	}
	if v := os.Getenv("NEEDSCAN_MMR_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MMR.TopK = n
		}
	}
	if v := os.Getenv("NEEDSCAN_HISTORY_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.History.Alpha = f
		}
	}
	if v := os.Getenv("NEEDSCAN_HEAVY_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeavyTopK = n
		}
	}
	if v := os.Getenv("NEEDSCAN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.PollInterval = d
		}
	}
	if v := os.Getenv("NEEDSCAN_STALE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.StaleThreshold = d
		}
	}
}

// Validate checks the configuration for values that would corrupt a run.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("priority weights must sum to 1.0 (got %.6f)", sum)
	}
	if c.Weights.Pain < 0 || c.Weights.Traction < 0 || c.Weights.Novelty < 0 ||
		c.Weights.WTP < 0 || c.Weights.Trend < 0 {
		return fmt.Errorf("priority weights cannot be negative")
	}
	if c.MMR.Lambda < 0 || c.MMR.Lambda > 1 {
		return fmt.Errorf("mmr lambda must be in [0,1] (got %.3f)", c.MMR.Lambda)
	}
	if c.MMR.TopK < 0 {
		return fmt.Errorf("mmr top_k cannot be negative (got %d)", c.MMR.TopK)
	}
	if c.MMR.TopKPerSector < 1 {
		return fmt.Errorf("mmr top_k_per_sector must be at least 1 (got %d)", c.MMR.TopKPerSector)
	}
	if c.History.Alpha < 0 || c.History.Alpha > 1 {
		return fmt.Errorf("history alpha must be in [0,1] (got %.3f)", c.History.Alpha)
	}
	if c.History.WindowDays < 1 {
		return fmt.Errorf("history window_days must be at least 1 (got %d)", c.History.WindowDays)
	}
	if c.History.RetentionDays < c.History.WindowDays {
		return fmt.Errorf("history retention_days (%d) cannot be shorter than window_days (%d)",
			c.History.RetentionDays, c.History.WindowDays)
	}
	if c.History.RecurringThreshold < 0 || c.History.RecurringThreshold > 1 {
		return fmt.Errorf("recurring_threshold must be in [0,1]")
	}
	if c.History.DuplicateThreshold < c.History.RecurringThreshold || c.History.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate_threshold must be in [recurring_threshold,1]")
	}
	if c.HeavyTopK < 0 {
		return fmt.Errorf("heavy_top_k cannot be negative (got %d)", c.HeavyTopK)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be positive")
	}
	if c.Worker.HeartbeatPeriod <= 0 {
		return fmt.Errorf("worker heartbeat_period must be positive")
	}
	if c.Worker.StaleThreshold <= c.Worker.HeartbeatPeriod {
		return fmt.Errorf("worker stale_threshold must exceed heartbeat_period")
	}
	if c.Quota.FreeScansPerDay < 1 {
		return fmt.Errorf("free_scans_per_day must be at least 1")
	}
	if c.Quota.FreeInsightsPerRun < 1 {
		return fmt.Errorf("free_insights_per_run must be at least 1")
	}
	return nil
}
