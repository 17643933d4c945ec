package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Catalog  CatalogConfig
	Auth     AuthConfig

	// Currency every order and wallet is denominated in.
	Currency string

	// BaseCallbackURL is prepended to gateway webhook paths.
	BaseCallbackURL string
	// ReturnURL / CancelURL are the storefront pages the gateway
	// redirects the shopper back to.
	ReturnURL string
	CancelURL string
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	// Brokers empty means event publishing is disabled.
	Brokers []string
	Topic   string
}

// GatewayConfig holds the hosted-checkout provider credentials.
type GatewayConfig struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
}

type CatalogConfig struct {
	BaseURL string
	APIKey  string
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8040"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "decal_checkout"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "checkout.payments"),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnv("GATEWAY_BASE_URL", "https://api-sandbox.payos.vn"),
			ClientID:    getEnv("GATEWAY_CLIENT_ID", ""),
			APIKey:      getEnv("GATEWAY_API_KEY", ""),
			ChecksumKey: getEnv("GATEWAY_CHECKSUM_KEY", ""),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_BASE_URL", "http://localhost:8031"),
			APIKey:  getEnv("CATALOG_API_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Currency:        getEnv("CURRENCY", "VND"),
		BaseCallbackURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8040"),
		ReturnURL:       getEnv("CHECKOUT_RETURN_URL", "http://localhost:3000/checkout/result"),
		CancelURL:       getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancelled"),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Gateway.ChecksumKey == "" {
		return nil, fmt.Errorf("GATEWAY_CHECKSUM_KEY is required")
	}

	return cfg, nil
}

// DatabaseURL builds the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
