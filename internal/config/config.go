package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"

	platformkafka "github.com/shestoi/paystation-relay/platform/kafka"
)

// Env представляет окружение приложения
type Env string

const (
	// EnvLocal - локальное окружение (для разработки на хосте)
	EnvLocal Env = "local"
	// EnvDocker - Docker окружение (для запуска в контейнерах)
	EnvDocker Env = "docker"
)

// Config содержит конфигурацию relay
type Config struct {
	AppEnv          Env           `env:"APP_ENV" envDefault:"local"`
	HTTPAddr        string        `env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"`

	Paystation PaystationConfig
	Poll       PollConfig
	Storage    StorageConfig
	Otel       OtelConfig
	Kafka      platformkafka.Config
}

// PaystationConfig параметры аккаунта и endpoint'ов шлюза
type PaystationConfig struct {
	URL               string        `env:"PAYSTATION_URL" envDefault:"https://www.paystation.co.nz/direct/paystation.dll"`
	LookupURL         string        `env:"PAYSTATION_LOOKUP_URL" envDefault:"https://payments.paystation.co.nz/lookup/"`
	PaystationID      string        `env:"PAYSTATION_ID"`
	GatewayID         string        `env:"PAYSTATION_GATEWAY_ID"`
	TestMode          bool          `env:"PAYSTATION_TEST_MODE" envDefault:"true"`
	HTTPTimeout       time.Duration `env:"PAYSTATION_HTTP_TIMEOUT" envDefault:"15s"`
	MerchantReference string        `env:"MERCHANT_REFERENCE" envDefault:"sample-node-merch-ref"`
}

// PollConfig опрос шлюза (pull path)
type PollConfig struct {
	Enabled  bool          `env:"POLL_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	Timeout  time.Duration `env:"POLL_TIMEOUT" envDefault:"15m"`
}

// StorageConfig выбор backend'ов хранения.
// Postgres DSN включает журнал в PostgreSQL вместо файла, Redis addr включает хранение карт в Redis.
type StorageConfig struct {
	TransactionsFile string `env:"TRANSACTIONS_FILE"`
	PostgresDSN      string `env:"TRANSACTIONS_POSTGRES_DSN"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	CardsFile     string `env:"CARDS_FILE"`
	RedisAddr     string `env:"CARDS_REDIS_ADDR"`
	RedisPassword string `env:"CARDS_REDIS_PASSWORD"`
	RedisKey      string `env:"CARDS_REDIS_KEY" envDefault:"paystation:cards"`
}

// OtelConfig экспорт трасс и метрик
type OtelConfig struct {
	Enabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SamplingRatio  float64       `env:"OTEL_SAMPLING_RATIO" envDefault:"1"`
	MetricInterval time.Duration `env:"OTEL_METRIC_INTERVAL" envDefault:"10s"`
}

// Load загружает конфигурацию из переменных окружения
// и устанавливает дефолты адресов в зависимости от APP_ENV
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse env: %w", err)
	}

	if cfg.AppEnv != EnvLocal && cfg.AppEnv != EnvDocker {
		return Config{}, fmt.Errorf("invalid APP_ENV: %s (must be 'local' or 'docker')", cfg.AppEnv)
	}

	if cfg.AppEnv == EnvLocal {
		setDefault(&cfg.HTTPAddr, "127.0.0.1:3000")
		setDefault(&cfg.Storage.TransactionsFile, "data/transactions.json")
		setDefault(&cfg.Storage.CardsFile, "data/cards.json")
		setDefault(&cfg.Otel.Endpoint, "127.0.0.1:4317")
	} else {
		setDefault(&cfg.HTTPAddr, "0.0.0.0:3000")
		setDefault(&cfg.Storage.TransactionsFile, "/data/transactions.json")
		setDefault(&cfg.Storage.CardsFile, "/data/cards.json")
		setDefault(&cfg.Otel.Endpoint, "otel-collector:4317")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Paystation.PaystationID == "" {
		return fmt.Errorf("PAYSTATION_ID is required")
	}
	if c.Paystation.GatewayID == "" {
		return fmt.Errorf("PAYSTATION_GATEWAY_ID is required")
	}
	if _, err := url.ParseRequestURI(c.Paystation.URL); err != nil {
		return fmt.Errorf("invalid PAYSTATION_URL: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Paystation.LookupURL); err != nil {
		return fmt.Errorf("invalid PAYSTATION_LOOKUP_URL: %w", err)
	}
	if c.Paystation.HTTPTimeout <= 0 {
		return fmt.Errorf("PAYSTATION_HTTP_TIMEOUT must be positive")
	}
	if c.Poll.Enabled {
		if c.Poll.Interval <= 0 {
			return fmt.Errorf("POLL_INTERVAL must be positive")
		}
		if c.Poll.Timeout < c.Poll.Interval {
			return fmt.Errorf("POLL_TIMEOUT must not be shorter than POLL_INTERVAL")
		}
	}
	if c.Otel.SamplingRatio < 0 || c.Otel.SamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0, 1]")
	}
	return nil
}

// Log выводит конфигурацию в лог (с маскировкой паролей)
func (c Config) Log(logger *zap.Logger) {
	logger.Info("Config loaded",
		zap.String("app_env", string(c.AppEnv)),
		zap.String("http_addr", c.HTTPAddr),
		zap.Duration("shutdown_timeout", c.ShutdownTimeout),
		zap.String("paystation_url", c.Paystation.URL),
		zap.String("paystation_lookup_url", c.Paystation.LookupURL),
		zap.String("paystation_id", c.Paystation.PaystationID),
		zap.Bool("paystation_test_mode", c.Paystation.TestMode),
		zap.Bool("poll_enabled", c.Poll.Enabled),
		zap.Duration("poll_interval", c.Poll.Interval),
		zap.Duration("poll_timeout", c.Poll.Timeout),
		zap.String("transactions_file", c.Storage.TransactionsFile),
		zap.String("transactions_postgres_dsn", maskDSN(c.Storage.PostgresDSN)),
		zap.String("cards_file", c.Storage.CardsFile),
		zap.String("cards_redis_addr", c.Storage.RedisAddr),
		zap.String("cards_redis_password", maskSecret(c.Storage.RedisPassword)),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.Bool("otel_enabled", c.Otel.Enabled),
		zap.String("otel_endpoint", c.Otel.Endpoint),
	)
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// maskDSN маскирует пароль в DSN для безопасного логирования
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	// Redacted заменяет пароль на xxxxx
	return u.Redacted()
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
