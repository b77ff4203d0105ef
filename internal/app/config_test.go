package app

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, GatewayMock, cfg.PaymentGateway)
	require.Equal(t, 10*time.Second, cfg.RefundTimeout)
	require.Equal(t, "flag", cfg.ReturnRefundPolicy)
	require.Equal(t, kafka.TopicOrderEvents, cfg.KafkaTopic)
	require.False(t, cfg.KafkaEnabled())
	require.Equal(t, log.InfoLevel, cfg.Level())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("FULFILLMENT_STORAGE", "postgres")
	t.Setenv("FULFILLMENT_POSTGRES_DSN", "postgres://localhost/fulfillment")
	t.Setenv("FULFILLMENT_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FULFILLMENT_REFUND_TIMEOUT", "3s")
	t.Setenv("FULFILLMENT_RETURN_REFUND_POLICY", "abort")
	t.Setenv("FULFILLMENT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoragePostgres, cfg.Storage)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
	require.Equal(t, 3*time.Second, cfg.RefundTimeout)
	require.Equal(t, "abort", cfg.ReturnRefundPolicy)
	require.Equal(t, log.DebugLevel, cfg.Level())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"FULFILLMENT_STORAGE": "postgres"}},
		{"stripe without key", map[string]string{"FULFILLMENT_PAYMENT_GATEWAY": "stripe"}},
		{"unknown storage", map[string]string{"FULFILLMENT_STORAGE": "redis"}},
		{"unknown policy", map[string]string{"FULFILLMENT_RETURN_REFUND_POLICY": "retry"}},
		{"bad duration", map[string]string{"FULFILLMENT_REFUND_TIMEOUT": "soon"}},
		{"zero batch", map[string]string{"FULFILLMENT_OUTBOX_BATCH_SIZE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}
