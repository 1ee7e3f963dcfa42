package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = ".env"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Sheet source drivers.
const (
	SheetsDriverHTTP = "http"
	SheetsDriverXLSX = "xlsx"
)

type Config struct {
	Env        string
	Port       int
	APIPrefix  string
	AppBaseURL string

	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	CORS         CORSConfig
	Log          LogConfig
	Sentry       SentryConfig
	Sheets       SheetsConfig
	ScoreSync    ScoreSyncConfig
	Certificates CertificatesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig holds the shared secret used by the hosted auth service to sign access tokens.
type AuthConfig struct {
	JWTSecret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SentryConfig enables error reporting when a DSN is present.
type SentryConfig struct {
	DSN     string
	Release string
}

// SheetsConfig selects and configures the external registration spreadsheet.
type SheetsConfig struct {
	Driver       string
	URL          string
	Token        string
	Timeout      time.Duration
	WorkbookPath string
	SheetName    string
}

// ScoreSyncConfig tunes the outbox worker pushing scores to the spreadsheet.
type ScoreSyncConfig struct {
	Workers           int
	MaxRetries        int
	MaxAttempts       int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	ReconcileInterval time.Duration
}

// CertificatesConfig controls certificate rendering and download links.
type CertificatesConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CacheTTL        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// .env is optional; deployments usually configure through the environment only
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AppBaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{JWTSecret: v.GetString("AUTH_JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sentry = SentryConfig{
		DSN:     v.GetString("SENTRY_DSN"),
		Release: v.GetString("SENTRY_RELEASE"),
	}

	cfg.Sheets = SheetsConfig{
		Driver:       strings.ToLower(v.GetString("SHEETS_DRIVER")),
		URL:          v.GetString("SHEETS_URL"),
		Token:        v.GetString("SHEETS_TOKEN"),
		Timeout:      parseDuration(v.GetString("SHEETS_TIMEOUT"), 10*time.Second),
		WorkbookPath: v.GetString("SHEETS_WORKBOOK_PATH"),
		SheetName:    v.GetString("SHEETS_SHEET_NAME"),
	}

	cfg.ScoreSync = ScoreSyncConfig{
		Workers:           v.GetInt("SCORE_SYNC_WORKERS"),
		MaxRetries:        v.GetInt("SCORE_SYNC_MAX_RETRIES"),
		MaxAttempts:       v.GetInt("SCORE_SYNC_MAX_ATTEMPTS"),
		RetryDelay:        parseDuration(v.GetString("SCORE_SYNC_RETRY_DELAY"), 5*time.Second),
		MaxRetryDelay:     parseDuration(v.GetString("SCORE_SYNC_MAX_RETRY_DELAY"), 5*time.Minute),
		ReconcileInterval: parseDuration(v.GetString("SCORE_SYNC_RECONCILE_INTERVAL"), 15*time.Minute),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), time.Hour),
		CacheTTL:        parseDuration(v.GetString("CERT_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "iels")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("SENTRY_RELEASE", "")

	v.SetDefault("SHEETS_DRIVER", SheetsDriverHTTP)
	v.SetDefault("SHEETS_URL", "")
	v.SetDefault("SHEETS_TOKEN", "")
	v.SetDefault("SHEETS_TIMEOUT", "10s")
	v.SetDefault("SHEETS_WORKBOOK_PATH", "./data/registrations.xlsx")
	v.SetDefault("SHEETS_SHEET_NAME", "Registrations")

	v.SetDefault("SCORE_SYNC_WORKERS", 1)
	v.SetDefault("SCORE_SYNC_MAX_RETRIES", 5)
	v.SetDefault("SCORE_SYNC_MAX_ATTEMPTS", 24)
	v.SetDefault("SCORE_SYNC_RETRY_DELAY", "5s")
	v.SetDefault("SCORE_SYNC_MAX_RETRY_DELAY", "5m")
	v.SetDefault("SCORE_SYNC_RECONCILE_INTERVAL", "15m")

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "1h")
	v.SetDefault("CERT_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
