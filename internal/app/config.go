package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// EnvPrefix задаёт префикс переменных окружения сервиса.
const EnvPrefix = "FULFILLMENT"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	GatewayMock   = "mock"
	GatewayStripe = "stripe"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051" validate:"required"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":9090" validate:"required"`

	Storage     string        `envconfig:"STORAGE" default:"memory" validate:"oneof=memory postgres"`
	PostgresDSN string        `envconfig:"POSTGRES_DSN" validate:"required_if=Storage postgres"`
	AutoMigrate bool          `envconfig:"AUTO_MIGRATE" default:"true"`
	TxTimeout   time.Duration `envconfig:"TX_TIMEOUT" default:"30s" validate:"gt=0"`

	PaymentGateway      string        `envconfig:"PAYMENT_GATEWAY" default:"mock" validate:"oneof=mock stripe"`
	StripeAPIKey        string        `envconfig:"STRIPE_API_KEY" validate:"required_if=PaymentGateway stripe"`
	RefundTimeout       time.Duration `envconfig:"REFUND_TIMEOUT" default:"10s" validate:"gt=0"`
	BreakerMaxFailures  int           `envconfig:"BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`
	BreakerResetTimeout time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s" validate:"gt=0"`
	ReturnRefundPolicy  string        `envconfig:"RETURN_REFUND_POLICY" default:"flag" validate:"oneof=flag abort"`

	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"fulfillment.order.events" validate:"required"`
	KafkaDLQTopic string   `envconfig:"KAFKA_DLQ_TOPIC" default:"fulfillment.dlq" validate:"required"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s" validate:"gt=0"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100" validate:"min=1,max=1000"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3" validate:"min=1"`
}

// DefaultConfig возвращает конфигурацию для локального запуска: память и mock-шлюз.
func DefaultConfig() Config {
	return Config{
		LogLevel:            "info",
		GRPCAddr:            ":50051",
		HTTPAddr:            ":9090",
		Storage:             StorageMemory,
		AutoMigrate:         true,
		TxTimeout:           30 * time.Second,
		PaymentGateway:      GatewayMock,
		RefundTimeout:       10 * time.Second,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
		ReturnRefundPolicy:  "flag",
		KafkaTopic:          kafka.TopicOrderEvents,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
	}
}

// LoadConfig читает конфигурацию из окружения с префиксом FULFILLMENT_.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level возвращает уровень логирования; неизвестное значение означает info.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// KafkaEnabled сообщает, настроена ли публикация в Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
