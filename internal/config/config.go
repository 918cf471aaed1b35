// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Redis    RedisConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	CORSOrigins  []string

	// TrustedProxies lists peers (IPs or CIDRs) whose forwarding headers are honoured.
	TrustedProxies []string
}

// DatabaseConfig holds database connection settings.
// Driver is one of "postgres", "sqlite" or "mysql".
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// RawDSN overrides the DSN built from the fields above when set.
	RawDSN string
	Debug  bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	TokenSecret string
	// TokenTTL of zero issues tokens without expiry.
	TokenTTL       time.Duration
	TokenRate      float64 // token requests per second per client
	TokenBurst     int
	VerifyCacheTTL time.Duration
}

// StorageConfig selects where recipe images live.
type StorageConfig struct {
	Backend        string // "fs" or "minio"
	MediaRoot      string
	MediaURL       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// RedisConfig enables the shared verifier cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DSN returns the driver specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.RawDSN != "" {
		return d.RawDSN
	}
	switch d.Driver {
	case "sqlite":
		return d.DBName
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName,
		)
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
		)
	}
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	if strings.HasPrefix(d.RawDSN, "postgres://") || strings.HasPrefix(d.RawDSN, "postgresql://") {
		return d.RawDSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8000"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 60),
			CORSOrigins:    getEnvList("CORS_ORIGINS", nil),
			TrustedProxies: getEnvList("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "recipes"),
			Password: getEnv("DB_PASSWORD", "recipes123"),
			DBName:   getEnv("DB_NAME", "recipes"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			RawDSN:   getEnv("DATABASE_DSN", ""),
			Debug:    getEnvBool("DB_DEBUG", false),
		},
		App: AppConfig{
			Dev:        getEnvBool("DEV", true),
			Migrations: getEnvBool("MIGRATIONS", false),
		},
		Auth: AuthConfig{
			TokenSecret:    getEnv("TOKEN_SECRET", "devtokensecret"),
			TokenTTL:       getEnvDuration("TOKEN_TTL", 0),
			TokenRate:      getEnvFloat("TOKEN_RATE", 1),
			TokenBurst:     getEnvInt("TOKEN_BURST", 5),
			VerifyCacheTTL: getEnvDuration("VERIFY_CACHE_TTL", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "fs"),
			MediaRoot:      getEnv("MEDIA_ROOT", "media"),
			MediaURL:       getEnv("MEDIA_URL", "/media"),
			MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			MinioBucket:    getEnv("MINIO_BUCKET", "recipe-images"),
			MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s", "24h").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
