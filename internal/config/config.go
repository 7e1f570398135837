package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Persistence. Driver is "sqlite" or "postgres"; DatabaseDSN is required
	// for postgres, DatabasePath for sqlite.
	DatabaseDriver string `mapstructure:"database_driver"`
	DatabasePath   string `mapstructure:"database_path"`
	DatabaseDSN    string `mapstructure:"database_dsn"`

	// RedisURL enables the warm snapshot cache tier; empty disables it.
	RedisURL string `mapstructure:"redis_url"`

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`  // HTTP read/write; 0 = server default
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"` // graceful shutdown wait

	KafkaAdminTimeoutSec int     `mapstructure:"kafka_admin_timeout_sec"` // read-only admin calls
	KafkaApplyTimeoutSec int     `mapstructure:"kafka_apply_timeout_sec"` // mutating admin calls
	KafkaRateLimitPerSec float64 `mapstructure:"kafka_rate_limit_per_sec"` // token bucket per cluster; 0 = no limit
	KafkaRateLimitBurst  int     `mapstructure:"kafka_rate_limit_burst"`

	SnapshotMemoryTTLSec   int `mapstructure:"snapshot_memory_ttl_sec"`  // hot cache tier
	SnapshotRedisTTLSec    int `mapstructure:"snapshot_redis_ttl_sec"`   // warm cache tier
	SnapshotRetentionHours int `mapstructure:"snapshot_retention_hours"` // durable tier cleanup cutoff
	CollectorIntervalSec   int `mapstructure:"collector_interval_sec"`   // 0 = background collection disabled

	// PolicyFailClosed makes malformed ACTIVE policies block planning instead
	// of degrading to built-in defaults with a warning.
	PolicyFailClosed bool     `mapstructure:"policy_fail_closed"`
	RequireOwner     bool     `mapstructure:"require_owner"`
	KnownTeams       []string `mapstructure:"known_teams"`

	MaxUploadBytes int `mapstructure:"max_upload_bytes"` // schema file uploads

	TracingEndpoint   string  `mapstructure:"tracing_endpoint"` // OTLP gRPC; empty disables tracing
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/streamgov/")
	viper.AddConfigPath("$HOME/.streamgov")
	viper.AddConfigPath(".")

	// Defaults
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("database_path", "./streamgov.db")
	viper.SetDefault("database_dsn", "")
	viper.SetDefault("redis_url", "")
	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)
	viper.SetDefault("kafka_admin_timeout_sec", 30)
	viper.SetDefault("kafka_apply_timeout_sec", 60)
	viper.SetDefault("kafka_rate_limit_per_sec", 0) // 0 = disabled
	viper.SetDefault("kafka_rate_limit_burst", 0)
	viper.SetDefault("snapshot_memory_ttl_sec", 15)
	viper.SetDefault("snapshot_redis_ttl_sec", 300)
	viper.SetDefault("snapshot_retention_hours", 168) // 7 days
	viper.SetDefault("collector_interval_sec", 0)
	viper.SetDefault("policy_fail_closed", false)
	viper.SetDefault("require_owner", true)
	viper.SetDefault("known_teams", []string{})
	viper.SetDefault("max_upload_bytes", 10*1024*1024) // 10MiB
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_sample_rate", 0.1)

	// Environment variables
	viper.SetEnvPrefix("STREAMGOV")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.KnownTeams = splitList(cfg.KnownTeams)

	switch cfg.DatabaseDriver {
	case "sqlite":
		if cfg.DatabasePath == "" {
			return nil, fmt.Errorf("database_path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("database_dsn is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown database_driver %q (want sqlite or postgres)", cfg.DatabaseDriver)
	}

	return &cfg, nil
}

// splitList expands comma-separated env values ("a,b , c") into a clean
// slice. Viper leaves env-sourced lists as a single element.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
