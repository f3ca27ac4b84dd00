package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// CONFIG_FILEでYAMLファイルが指定された場合はその値を既定値とし、環境変数で上書きする。
type Config struct {
	// Database
	DatabaseURL       string        `yaml:"database_url"`
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`

	// Redis（未設定の場合は未読キャッシュを使わない）
	RedisURL       string        `yaml:"redis_url"`
	UnreadCacheTTL time.Duration `yaml:"unread_cache_ttl"`

	// Rate Limit
	RateLimitGeneral int `yaml:"rate_limit_general"`
	RateLimitWrite   int `yaml:"rate_limit_write"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Server
	ServerPort string `yaml:"server_port"`

	// CORS
	CORSAllowedOrigin string `yaml:"cors_allowed_origin"`
}

// defaults は任意項目の既定値を返す。
func defaults() *Config {
	return &Config{
		DBMaxOpenConns:    25,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 30 * time.Minute,
		WriteTimeout:      10 * time.Second,
		UnreadCacheTTL:    time.Minute,
		RateLimitGeneral:  120,
		RateLimitWrite:    30,
		LogLevel:          "info",
		ServerPort:        "8080",
		CORSAllowedOrigin: "http://localhost:3000",
	}
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.DBMaxIdleConns)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetime)
	cfg.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.RedisURL = getEnvString("REDIS_URL", cfg.RedisURL)
	cfg.UnreadCacheTTL = getEnvDuration("UNREAD_CACHE_TTL", cfg.UnreadCacheTTL)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", cfg.RateLimitWrite)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)

	return cfg, nil
}

// loadFile はYAMLファイルの値をcfgに上書きする。ファイルに無い項目は既定値のまま残る。
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
