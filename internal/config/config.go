package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/anax-commerce/commerce-service/internal/messaging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogJSON  bool   `mapstructure:"LOG_JSON"`

	// PostgreSQL configuration
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         int    `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSL_MODE"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`

	// RabbitMQ configuration
	RabbitMQHost       string `mapstructure:"RABBITMQ_HOST"`
	RabbitMQPort       int    `mapstructure:"RABBITMQ_PORT"`
	RabbitMQUsername   string `mapstructure:"RABBITMQ_USERNAME"`
	RabbitMQPassword   string `mapstructure:"RABBITMQ_PASSWORD"`
	RabbitMQVHost      string `mapstructure:"RABBITMQ_VHOST"`
	RabbitMQExchange   string `mapstructure:"RABBITMQ_EXCHANGE"`
	RabbitMQQueue      string `mapstructure:"RABBITMQ_QUEUE"`
	RabbitMQRetryCount int    `mapstructure:"RABBITMQ_RETRY_COUNT"`

	// Redis is optional; without it locks are process local.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret            string  `mapstructure:"JWT_SECRET"`
	WebhookSecret        string  `mapstructure:"WEBHOOK_SECRET"`
	WebhookRatePerSecond float64 `mapstructure:"WEBHOOK_RATE_PER_SECOND"`
	WebhookBurst         int     `mapstructure:"WEBHOOK_BURST"`

	DeliveryFee        string        `mapstructure:"DELIVERY_FEE"`
	Currency           string        `mapstructure:"CURRENCY"`
	PaymentTimeout     time.Duration `mapstructure:"PAYMENT_TIMEOUT"`
	LockTTL            time.Duration `mapstructure:"LOCK_TTL"`
	LockWait           time.Duration `mapstructure:"LOCK_WAIT"`
	GatewayFailureRate float64       `mapstructure:"GATEWAY_FAILURE_RATE"`
}

// LoadConfig reads an optional .env and app.env from path, then the
// environment. Environment variables win over both files.
func LoadConfig(path string) (config Config, err error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err == nil {
		log.Info().Msg("Loaded .env file")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "commerce-service")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "commerce_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)

	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", 5672)
	v.SetDefault("RABBITMQ_USERNAME", "guest")
	v.SetDefault("RABBITMQ_PASSWORD", "guest")
	v.SetDefault("RABBITMQ_VHOST", "/")
	v.SetDefault("RABBITMQ_EXCHANGE", "commerce.events")
	v.SetDefault("RABBITMQ_QUEUE", "commerce.reconciliation")
	v.SetDefault("RABBITMQ_RETRY_COUNT", 5)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_RATE_PER_SECOND", 20.0)
	v.SetDefault("WEBHOOK_BURST", 40)

	v.SetDefault("DELIVERY_FEE", "0.00")
	v.SetDefault("CURRENCY", "UGX")
	v.SetDefault("PAYMENT_TIMEOUT", "15m")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("LOCK_WAIT", "5s")
	v.SetDefault("GATEWAY_FAILURE_RATE", 0.0)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info().Msg("No config file found, using environment variables and defaults.")
		} else {
			log.Error().Err(err).Msg("Error reading config file")
			return
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("config decode error: %w", err)
	}
	err = config.Validate()
	return
}

func (c Config) Validate() error {
	if _, err := c.DeliveryFeeAmount(); err != nil {
		return err
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive, got %s", c.PaymentTimeout)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.WebhookRatePerSecond <= 0 || c.WebhookBurst <= 0 {
		return fmt.Errorf("webhook rate limit must be positive")
	}
	return nil
}

func (c Config) DeliveryFeeAmount() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.DeliveryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid DELIVERY_FEE %q: %w", c.DeliveryFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("DELIVERY_FEE must not be negative, got %s", c.DeliveryFee)
	}
	return fee.Round(2), nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c Config) RabbitMQ() *messaging.RabbitMQConfig {
	return &messaging.RabbitMQConfig{
		Host:              c.RabbitMQHost,
		Port:              c.RabbitMQPort,
		Username:          c.RabbitMQUsername,
		Password:          c.RabbitMQPassword,
		VHost:             c.RabbitMQVHost,
		Exchange:          c.RabbitMQExchange,
		RetryCount:        c.RabbitMQRetryCount,
		RetryDelay:        5 * time.Second,
		ConnectionTimeout: 30 * time.Second,
	}
}
