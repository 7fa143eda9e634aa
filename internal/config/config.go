package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int               `json:"port"`
	JWTSecret     string            `json:"jwt_secret"`
	LogConfig     logger.LogConfig  `json:"log_config"`
	CacheDir      string            `json:"cache_dir"`
	Model         ModelConfig       `json:"model"`
	WeightStore   WeightStoreConfig `json:"weight_store"`
	VectorCache   VectorCacheConfig `json:"vector_cache"`
	Database      DatabaseConfig    `json:"database"`
	CORSAllowlist []string          `json:"cors_allowlist"`
	RateLimitSec  int               `json:"rate_limit_sec"`
}

type ModelConfig struct {
	Runtime       string      `json:"runtime"`
	Name          string      `json:"name"`
	Quantized     bool        `json:"quantized"`
	SettleDelayMS int         `json:"settle_delay_ms"`
	Data          interface{} `json:"data"`
}

type WeightStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorCacheConfig struct {
	LRUSize     int     `json:"lru_size"`
	LRUTTLMin   int     `json:"lru_ttl_min"`
	EnableDB    bool    `json:"enable_db"`
	MaxAgeDays  int     `json:"max_age_days"`
	CleanupCron string  `json:"cleanup_cron"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache_dir is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Model.Runtime == "" {
		cfg.Model.Runtime = "local"
	}
	if cfg.Model.Name == "" {
		return nil, fmt.Errorf("model.name is required")
	}
	if cfg.Model.SettleDelayMS == 0 {
		cfg.Model.SettleDelayMS = 500
	}
	if cfg.Model.Runtime == "local" {
		if cfg.WeightStore.Type == "" {
			cfg.WeightStore.Type = "local"
		}
	}
	if cfg.VectorCache.EnableDB && cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database is required when vector_cache.enable_db is set")
	}
	if cfg.VectorCache.CleanupCron == "" {
		cfg.VectorCache.CleanupCron = "30 3 * * *"
	}
	return &cfg, nil
}
