package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outbox"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/workflow"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// storage держит выбранное хранилище и порты, которые нужны движку.
type storage struct {
	uow       domain.UnitOfWork
	outbox    domain.OutboxRepository
	carts     domain.CartService
	addresses domain.AddressResolver
	ping      func(ctx context.Context) error
	close     func() error
}

// Dependencies содержит собранные компоненты сервиса.
type Dependencies struct {
	Engine  *workflow.Engine
	Worker  *outbox.Worker
	Health  *healthcheck.Handler
	Breaker *payment.CircuitBreaker

	logger  *log.Entry
	closers []func() error
}

// NewDependencies собирает хранилище, платёжный шлюз, Kafka и движок по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &Dependencies{
		Health: healthcheck.NewHandler(version.Service, version.GetVersion()),
		logger: logger,
	}

	policy, err := workflow.ParseRefundPolicy(cfg.ReturnRefundPolicy)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, store.close)
	deps.Health.Register(healthcheck.NewCritical("storage", store.ping))

	gateway, err := initGateway(cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	workflowMetrics := metrics.NewWorkflowMetricsWithRegisterer(registerer)
	outboxMetrics := metrics.NewOutboxMetricsWithRegisterer(registerer)

	deps.Breaker = payment.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("component", "payment-breaker"))
	deps.Health.Register(healthcheck.NewOptional("payment_gateway", func(context.Context) error {
		if deps.Breaker.State() == payment.CircuitOpen {
			return payment.ErrCircuitOpen
		}
		return nil
	}))

	coordinator := payment.NewCoordinator(gateway,
		payment.WithTimeout(cfg.RefundTimeout),
		payment.WithBreaker(deps.Breaker),
		payment.WithObserver(workflowMetrics),
		payment.WithLogger(logger.WithField("component", "refund-coordinator")),
	)
	ledger := inventory.NewLedger(
		inventory.WithObserver(workflowMetrics),
		inventory.WithLogger(logger.WithField("component", "inventory-ledger")),
	)
	deps.Engine = workflow.NewEngine(store.uow, store.carts, store.addresses, ledger, coordinator,
		workflow.WithLogger(logger.WithField("component", "order-workflow")),
		workflow.WithRecorder(workflowMetrics),
		workflow.WithRefundPolicy(policy),
	)

	publisher, dlq := initPublishers(cfg, deps, logger)
	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(outboxMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	if dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(dlq))
	}
	deps.Worker = outbox.NewWorker(store.outbox, publisher, workerOpts...)

	return deps, nil
}

// Close освобождает ресурсы в обратном порядке создания.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (storage, error) {
	switch cfg.Storage {
	case StorageMemory, "":
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return storage{
			uow:       store,
			outbox:    store.Outbox(),
			carts:     store.Carts(),
			addresses: store.Addresses(),
			ping:      func(context.Context) error { return nil },
			close:     func() error { return nil },
		}, nil

	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithTxTimeout(cfg.TxTimeout))
		if err != nil {
			return storage{}, err
		}
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return storage{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return storage{
			uow:       store,
			outbox:    store.Outbox(),
			carts:     store.Carts(),
			addresses: store.Addresses(),
			ping:      store.Ping,
			close:     store.Close,
		}, nil

	default:
		return storage{}, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

func initGateway(cfg Config) (domain.PaymentGateway, error) {
	switch cfg.PaymentGateway {
	case GatewayMock, "":
		return payment.NewMockGateway(), nil
	case GatewayStripe:
		return payment.NewStripeGateway(cfg.StripeAPIKey)
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.PaymentGateway)
	}
}

// initPublishers подключает Kafka, если заданы брокеры. Недоступный брокер не мешает
// старту: события копятся в outbox и публикуются в лог.
func initPublishers(cfg Config, deps *Dependencies, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	fallback := newLogPublisher(logger.WithField("component", "outbox-log-publisher"))
	if !cfg.KafkaEnabled() {
		return fallback, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, version.ClientID())
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		deps.Health.Register(healthcheck.NewOptional("kafka", func(context.Context) error { return err }))
		return fallback, nil
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	deps.closers = append(deps.closers, producer.Close)
	deps.Health.Register(healthcheck.NewOptional("kafka", func(context.Context) error { return nil }))
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)
}

// logPublisher пишет события в лог, когда брокер не настроен.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) *logPublisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	if event.ID == "" {
		return errors.New("outbox message without id")
	}
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("order event")
	return nil
}
