package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Workflow - счетчики рабочего процесса баунти.
type Workflow struct {
	transitions  *prometheus.CounterVec
	consistency  *prometheus.CounterVec
	confirmation *prometheus.HistogramVec
}

var (
	workflowOnce sync.Once
	workflow     *Workflow
)

// Default возвращает лениво зарегистрированный набор метрик.
func Default() *Workflow {
	workflowOnce.Do(func() {
		workflow = &Workflow{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Name:      "transitions_total",
				Help:      "Workflow operations segmented by operation and result kind.",
			}, []string{"op", "result"}),
			consistency: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Name:      "consistency_errors_total",
				Help:      "Confirmed on-chain operations whose off-chain write failed.",
			}, []string{"op"}),
			confirmation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Name:      "confirm_seconds",
				Help:      "Time spent waiting for escrow contract confirmations.",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			workflow.transitions,
			workflow.consistency,
			workflow.confirmation,
		)
	})
	return workflow
}

// ObserveTransition учитывает результат операции; result - "ok" или класс ошибки.
func (w *Workflow) ObserveTransition(op, result string) {
	if w == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	w.transitions.WithLabelValues(op, result).Inc()
}

// RecordConsistencyError учитывает подтвержденную транзакцию без записи в хранилище.
func (w *Workflow) RecordConsistencyError(op string) {
	if w == nil {
		return
	}
	w.consistency.WithLabelValues(op).Inc()
}

// ObserveConfirmation учитывает время ожидания подтверждения.
func (w *Workflow) ObserveConfirmation(method string, d time.Duration) {
	if w == nil {
		return
	}
	w.confirmation.WithLabelValues(method).Observe(d.Seconds())
}
