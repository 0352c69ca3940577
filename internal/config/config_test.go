package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	dir := t.TempDir()
	v := newViper()
	v.Set("data_path", dir)

	cfg, err := fromViper(v, "")
	if err != nil {
		t.Fatalf("fromViper failed: %v", err)
	}

	if cfg.DemandDir != filepath.Join(dir, "demand") {
		t.Errorf("Expected demand dir under data path, got %s", cfg.DemandDir)
	}
	if cfg.MinDataPoints != 7 || cfg.MaxHorizon != 365 || cfg.DefaultHorizon != 30 {
		t.Errorf("Unexpected forecast defaults: %+v", cfg)
	}
	if cfg.DefaultServiceLevel != 95 || cfg.MinServiceLevel != 80 || cfg.MaxServiceLevel != 99 {
		t.Errorf("Unexpected service level defaults: %+v", cfg)
	}
	if cfg.RedisTTL != 24*time.Hour || cfg.RedisPrefix != "model:" {
		t.Errorf("Unexpected redis defaults: ttl=%s prefix=%s", cfg.RedisTTL, cfg.RedisPrefix)
	}
	if cfg.SnapshotBackend != "file" {
		t.Errorf("Expected file snapshot backend, got %s", cfg.SnapshotBackend)
	}
	if _, err := os.Stat(cfg.ModelsDir); err != nil {
		t.Errorf("Expected models dir to be created: %v", err)
	}
}

func TestFromViper_Environment(t *testing.T) {
	t.Setenv("STOCKCAST_DATA_PATH", t.TempDir())
	t.Setenv("STOCKCAST_DEFAULT_LEAD_TIME", "14")
	t.Setenv("STOCKCAST_SNAPSHOT_BACKEND", "SQLite")
	t.Setenv("STOCKCAST_ENABLE_MERMAID_CHARTS", "true")

	cfg, err := fromViper(newViper(), "")
	if err != nil {
		t.Fatalf("fromViper failed: %v", err)
	}
	if cfg.DefaultLeadTime != 14 {
		t.Errorf("Expected lead time 14, got %d", cfg.DefaultLeadTime)
	}
	if cfg.SnapshotBackend != "sqlite" {
		t.Errorf("Expected sqlite backend, got %s", cfg.SnapshotBackend)
	}
	if !cfg.EnableMermaidCharts {
		t.Errorf("Expected mermaid charts to be enabled")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stockcast.yaml")
	content := "data_path: " + dir + "\nmax_horizon: 90\ndefault_horizon: 14\nbatch_workers: 8\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxHorizon != 90 || cfg.DefaultHorizon != 14 || cfg.BatchWorkers != 8 {
		t.Errorf("Config file values not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{
			MinDataPoints: 7, MaxHorizon: 365, DefaultHorizon: 30, ConfidenceLevel: 0.8,
			DefaultLeadTime: 7, MaxLeadTime: 90,
			DefaultServiceLevel: 95, MinServiceLevel: 80, MaxServiceLevel: 99,
			SnapshotBackend: "file",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr bool
	}{
		{"Valid", func(c *AppConfig) {}, false},
		{"HorizonAboveMax", func(c *AppConfig) { c.DefaultHorizon = 400 }, true},
		{"ConfidenceOutOfRange", func(c *AppConfig) { c.ConfidenceLevel = 1 }, true},
		{"ServiceLevelOutsideBounds", func(c *AppConfig) { c.DefaultServiceLevel = 99.5 }, true},
		{"UnknownBackend", func(c *AppConfig) { c.SnapshotBackend = "mongo" }, true},
		{"PostgresWithoutDSN", func(c *AppConfig) { c.SnapshotBackend = "postgresql" }, true},
		{"NoSnapshots", func(c *AppConfig) { c.SnapshotBackend = "none" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
