package collector

import (
	"errors"
	"fmt"

	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusLabel = "status"
	MethodLabel = "method"

	CycleSucceeded = "succeeded"
	CycleFailed    = "failed"
	CycleSkipped   = "skipped"

	SlotFetched = "fetched"
	SlotSkipped = "skipped"

	TransactionTypeVote    = "vote"
	TransactionTypeNonVote = "non_vote"
)

// Metrics describe the collector itself, not the network; the network figures go to the sinks.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	RpcCalls      *prometheus.CounterVec
	Slots         *prometheus.CounterVec
	CycleDuration prometheus.Gauge
	Collecting    prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_metrics_collection_cycles_total",
				Help: fmt.Sprintf(
					"Number of collection ticks, grouped by %s ('%s', '%s' or '%s')",
					StatusLabel, CycleSucceeded, CycleFailed, CycleSkipped,
				),
			},
			[]string{StatusLabel},
		),
		RpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_metrics_rpc_calls_total",
				Help: fmt.Sprintf("Number of upstream RPC calls, successful or not, grouped by %s", MethodLabel),
			},
			[]string{MethodLabel},
		),
		Slots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_metrics_slots_total",
				Help: fmt.Sprintf(
					"Number of slots processed, grouped by %s ('%s' or '%s')", StatusLabel, SlotFetched, SlotSkipped,
				),
			},
			[]string{StatusLabel},
		),
		CycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_metrics_collection_duration_seconds",
			Help: "Wall time of the most recent collection cycle.",
		}),
		Collecting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_metrics_collection_in_progress",
			Help: "1 while a collection cycle is running, 0 otherwise.",
		}),
	}
	MustRegister(
		registerer, metrics.Cycles, metrics.RpcCalls, metrics.Slots, metrics.CycleDuration, metrics.Collecting,
	)
	return &metrics
}

// MustRegister registers collectors, tolerating ones that are already registered.
func MustRegister(registerer prometheus.Registerer, collectors ...prometheus.Collector) {
	logger := slog.Get()
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var alreadyRegisteredErr prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegisteredErr) {
				continue
			}
			logger.Fatal(fmt.Errorf("failed to register collector: %w", err))
		}
	}
}
