package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fulfillment"

// WorkflowMetrics собирает метрики операций над заказами, возвратов средств и остатков.
// Все методы безопасны для nil-получателя.
type WorkflowMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	refunds           *prometheus.CounterVec
	refundDuration    *prometheus.HistogramVec
	stockUnits        *prometheus.CounterVec
	timelineEvents    prometheus.Counter
	outboxEvents      prometheus.Counter
	manualReview      prometheus.Counter
}

// NewWorkflowMetrics регистрирует метрики в DefaultRegisterer.
func NewWorkflowMetrics() *WorkflowMetrics {
	return NewWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkflowMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	return &WorkflowMetrics{
		operations: counterVec(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_operations_total",
			Help:      "Workflow operations grouped by operation and result code.",
		}, "operation", "result"),
		operationDuration: histogramVec(registerer, prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_operation_duration_seconds",
			Help:      "Duration of workflow operations in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, "operation"),
		refunds: counterVec(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_requests_total",
			Help:      "Payment gateway calls grouped by kind and outcome.",
		}, "kind", "outcome"),
		refundDuration: histogramVec(registerer, prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refund_request_duration_seconds",
			Help:      "Duration of payment gateway calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, "kind"),
		stockUnits: counterVec(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_total",
			Help:      "Stock units moved by the inventory ledger.",
		}, "direction"),
		timelineEvents: counter(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_events_total",
			Help:      "Timeline events recorded.",
		}),
		outboxEvents: counter(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_enqueued_total",
			Help:      "Events enqueued to the transactional outbox.",
		}),
		manualReview: counter(registerer, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_manual_review_total",
			Help:      "Approved returns whose refund failed and needs manual processing.",
		}),
	}
}

// ObserveOperation учитывает завершение операции с кодом результата.
func (m *WorkflowMetrics) ObserveOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRefund учитывает обращение к платёжному шлюзу.
func (m *WorkflowMetrics) ObserveRefund(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(kind, outcome).Inc()
	m.refundDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// StockReserved учитывает списание остатков.
func (m *WorkflowMetrics) StockReserved(units int) {
	if m == nil {
		return
	}
	m.stockUnits.WithLabelValues("reserved").Add(float64(units))
}

// StockRestored учитывает возврат остатков на склад.
func (m *WorkflowMetrics) StockRestored(units int) {
	if m == nil {
		return
	}
	m.stockUnits.WithLabelValues("restored").Add(float64(units))
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *WorkflowMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordManualReview отмечает возврат, требующий ручной обработки.
func (m *WorkflowMetrics) RecordManualReview() {
	if m == nil {
		return
	}
	m.manualReview.Inc()
}
