package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Publish  PublishConfig  `mapstructure:"publish"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port          int    `mapstructure:"port"`
	MaxPortfolios int    `mapstructure:"max_portfolios"`
	ClamdAddr     string `mapstructure:"clamd_addr"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 指向用于校验访问令牌的 RSA 公钥。
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

// EditorConfig 控制同步引擎的防抖窗口、状态展示窗口与保存超时。
type EditorConfig struct {
	DebounceMS    int `mapstructure:"debounce_ms"`
	SavedWindowMS int `mapstructure:"saved_window_ms"`
	ErrorWindowMS int `mapstructure:"error_window_ms"`
	SaveTimeoutMS int `mapstructure:"save_timeout_ms"`
}

// Debounce 返回防抖窗口时长。
func (e EditorConfig) Debounce() time.Duration {
	return time.Duration(e.DebounceMS) * time.Millisecond
}

// SavedWindow 返回 saved 状态的展示窗口。
func (e EditorConfig) SavedWindow() time.Duration {
	return time.Duration(e.SavedWindowMS) * time.Millisecond
}

// ErrorWindow 返回 error 状态的展示窗口。
func (e EditorConfig) ErrorWindow() time.Duration {
	return time.Duration(e.ErrorWindowMS) * time.Millisecond
}

// SaveTimeout 返回单次保存的超时时间。
func (e EditorConfig) SaveTimeout() time.Duration {
	return time.Duration(e.SaveTimeoutMS) * time.Millisecond
}

// PublishConfig 控制发布流水线的限额与公开访问地址。
type PublishConfig struct {
	MaxPerDay     int    `mapstructure:"max_per_day"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_portfolios", 10)
	v.SetDefault("api.clamd_addr", "tcp://localhost:3310")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "phfolio")
	v.SetDefault("database.user", "phfolio")
	v.SetDefault("database.password", "phfolio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "portfolios")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("editor.debounce_ms", 800)
	v.SetDefault("editor.saved_window_ms", 2000)
	v.SetDefault("editor.error_window_ms", 3000)
	v.SetDefault("editor.save_timeout_ms", 10000)
	v.SetDefault("publish.max_per_day", 20)
	v.SetDefault("publish.public_base_url", "http://localhost:8080")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                 "API_PORT",
		"api.max_portfolios":       "API_MAX_PORTFOLIOS",
		"api.clamd_addr":           "CLAMD_ADDR",
		"database.host":            "DATABASE_HOST",
		"database.port":            "DATABASE_PORT",
		"database.name":            "POSTGRES_DB",
		"database.user":            "POSTGRES_USER",
		"database.password":        "POSTGRES_PASSWORD",
		"database.sslmode":         "DATABASE_SSLMODE",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"minio.endpoint":           "MINIO_ENDPOINT",
		"minio.public_endpoint":    "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":      "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":  "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":            "MINIO_USE_SSL",
		"minio.region":             "MINIO_REGION",
		"minio.bucket":             "MINIO_BUCKET",
		"minio.bucket_lookup":      "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket": "MINIO_AUTO_CREATE_BUCKET",
		"auth.public_key_path":     "AUTH_PUBLIC_KEY_PATH",
		"editor.debounce_ms":       "EDITOR_AUTOSAVE_DEBOUNCE_MS",
		"editor.saved_window_ms":   "EDITOR_SAVED_WINDOW_MS",
		"editor.error_window_ms":   "EDITOR_ERROR_WINDOW_MS",
		"editor.save_timeout_ms":   "EDITOR_SAVE_TIMEOUT_MS",
		"publish.max_per_day":      "PUBLISH_MAX_PER_DAY",
		"publish.public_base_url":  "PUBLISH_PUBLIC_BASE_URL",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Editor.DebounceMS <= 0 {
		return errors.New("editor debounce must be positive")
	}
	if cfg.Editor.SaveTimeoutMS <= 0 {
		return errors.New("editor save timeout must be positive")
	}
	return nil
}
