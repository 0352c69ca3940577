package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when resolving environment variables.
const EnvPrefix = "STOCKCAST"

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DataPath  string
	LogDir    string
	DemandDir string
	ModelsDir string

	MinDataPoints   int
	MaxHorizon      int
	DefaultHorizon  int
	ConfidenceLevel float64

	DefaultLeadTime     int
	MaxLeadTime         int
	DefaultServiceLevel float64
	MinServiceLevel     float64
	MaxServiceLevel     float64
	StockoutTrials      int
	BatchWorkers        int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	RedisPrefix   string

	SnapshotBackend string
	SnapshotDSN     string

	EnableMermaidCharts bool
}

// setDefaults registers every key; viper only resolves environment variables for known keys.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_path", "")
	v.SetDefault("log_dir", "")
	v.SetDefault("demand_dir", "")
	v.SetDefault("models_dir", "")
	v.SetDefault("min_data_points", 7)
	v.SetDefault("max_horizon", 365)
	v.SetDefault("default_horizon", 30)
	v.SetDefault("confidence_level", 0.80)
	v.SetDefault("default_lead_time", 7)
	v.SetDefault("max_lead_time", 90)
	v.SetDefault("default_service_level", 95.0)
	v.SetDefault("min_service_level", 80.0)
	v.SetDefault("max_service_level", 99.0)
	v.SetDefault("stockout_trials", 2000)
	v.SetDefault("batch_workers", 4)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_ttl", "24h")
	v.SetDefault("redis_prefix", "model:")
	v.SetDefault("snapshot_backend", "file")
	v.SetDefault("snapshot_dsn", "")
	v.SetDefault("enable_mermaid_charts", false)
}

// Load loads the configuration from .env files, environment variables and an optional YAML
// file. An empty configFile searches for .stockcast.yaml in the working and home directories.
func Load(configFile string) (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".stockcast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("Loaded configuration file")
	}

	return fromViper(v, exeDir)
}

func fromViper(v *viper.Viper, exeDir string) (*AppConfig, error) {
	// Resolve Data Paths
	dataPath := v.GetString("data_path")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	cfg := &AppConfig{
		DataPath:  dataPath,
		LogDir:    orDefault(v.GetString("log_dir"), filepath.Join(dataPath, "logs")),
		DemandDir: orDefault(v.GetString("demand_dir"), filepath.Join(dataPath, "demand")),
		ModelsDir: orDefault(v.GetString("models_dir"), filepath.Join(dataPath, "models")),

		MinDataPoints:   v.GetInt("min_data_points"),
		MaxHorizon:      v.GetInt("max_horizon"),
		DefaultHorizon:  v.GetInt("default_horizon"),
		ConfidenceLevel: v.GetFloat64("confidence_level"),

		DefaultLeadTime:     v.GetInt("default_lead_time"),
		MaxLeadTime:         v.GetInt("max_lead_time"),
		DefaultServiceLevel: v.GetFloat64("default_service_level"),
		MinServiceLevel:     v.GetFloat64("min_service_level"),
		MaxServiceLevel:     v.GetFloat64("max_service_level"),
		StockoutTrials:      v.GetInt("stockout_trials"),
		BatchWorkers:        v.GetInt("batch_workers"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		RedisTTL:      v.GetDuration("redis_ttl"),
		RedisPrefix:   v.GetString("redis_prefix"),

		SnapshotBackend: strings.ToLower(v.GetString("snapshot_backend")),
		SnapshotDSN:     v.GetString("snapshot_dsn"),

		EnableMermaidCharts: v.GetBool("enable_mermaid_charts"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure directories exist
	for _, dir := range []string{cfg.LogDir, cfg.DemandDir, cfg.ModelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to create data directory")
		}
	}

	return cfg, nil
}

// Validate rejects settings the engines cannot run with.
func (c *AppConfig) Validate() error {
	switch {
	case c.MinDataPoints < 2:
		return fmt.Errorf("min_data_points must be at least 2, got %d", c.MinDataPoints)
	case c.MaxHorizon < 1:
		return fmt.Errorf("max_horizon must be positive, got %d", c.MaxHorizon)
	case c.DefaultHorizon < 1 || c.DefaultHorizon > c.MaxHorizon:
		return fmt.Errorf("default_horizon must be between 1 and %d, got %d", c.MaxHorizon, c.DefaultHorizon)
	case c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1:
		return fmt.Errorf("confidence_level must be within (0, 1), got %g", c.ConfidenceLevel)
	case c.MaxLeadTime < 1 || c.DefaultLeadTime < 1 || c.DefaultLeadTime > c.MaxLeadTime:
		return fmt.Errorf("default_lead_time must be between 1 and max_lead_time (%d), got %d", c.MaxLeadTime, c.DefaultLeadTime)
	case c.MinServiceLevel <= 50 || c.MaxServiceLevel >= 100 || c.MinServiceLevel > c.MaxServiceLevel:
		return fmt.Errorf("service level bounds must satisfy 50 < min <= max < 100, got %g..%g", c.MinServiceLevel, c.MaxServiceLevel)
	case c.DefaultServiceLevel < c.MinServiceLevel || c.DefaultServiceLevel > c.MaxServiceLevel:
		return fmt.Errorf("default_service_level must be within %g..%g, got %g", c.MinServiceLevel, c.MaxServiceLevel, c.DefaultServiceLevel)
	case c.StockoutTrials < 0:
		return fmt.Errorf("stockout_trials must not be negative, got %d", c.StockoutTrials)
	case c.RedisTTL < 0:
		return fmt.Errorf("redis_ttl must not be negative, got %s", c.RedisTTL)
	}

	switch c.SnapshotBackend {
	case "file", "sqlite", "mysql", "postgresql", "none":
	default:
		return fmt.Errorf("snapshot_backend must be one of file, sqlite, mysql, postgresql, none; got %q", c.SnapshotBackend)
	}
	if (c.SnapshotBackend == "mysql" || c.SnapshotBackend == "postgresql") && c.SnapshotDSN == "" {
		return fmt.Errorf("snapshot_dsn is required for the %s snapshot backend", c.SnapshotBackend)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
