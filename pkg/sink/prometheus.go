package sink

import (
	"context"
	"fmt"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatisticLabel       = "statistic"
	TransactionTypeLabel = "transaction_type"
)

// Prometheus exposes the most recent record as gauges.
type Prometheus struct {
	TimestampMetric             prometheus.Gauge
	StartSlotMetric             prometheus.Gauge
	EndSlotMetric               prometheus.Gauge
	BlockProductionRateMetric   prometheus.Gauge
	TransactionsPerSecondMetric prometheus.Gauge
	TransactionsPerMinuteMetric *prometheus.GaugeVec
	BlockTimeMetric             prometheus.Gauge
	FeesPerMinuteMetric         prometheus.Gauge
	FeeStatsMetric              *prometheus.GaugeVec
	BlockRewardsPerMinuteMetric prometheus.Gauge
	ComputeUnitsPerMinuteMetric prometheus.Gauge
	ComputeUnitStatsMetric      *prometheus.GaugeVec
	TransactionsMetric          *prometheus.GaugeVec
	ApiCallsMetric              prometheus.Gauge
	ExecutionTimeMetric         prometheus.Gauge
}

func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	p := Prometheus{
		TimestampMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_sample_timestamp_seconds",
			Help: "Unix time at which the latest sample was taken.",
		}),
		StartSlotMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_sample_first_slot",
			Help: "First slot [inclusive] of the latest sampling window.",
		}),
		EndSlotMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_sample_last_slot",
			Help: "Last slot [inclusive] of the latest sampling window.",
		}),
		BlockProductionRateMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_block_production_rate",
			Help: "Slots produced per minute.",
		}),
		TransactionsPerSecondMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_transactions_per_second",
			Help: "Transactions (vote and non-vote) per second.",
		}),
		TransactionsPerMinuteMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_network_transactions_per_minute",
				Help: fmt.Sprintf(
					"Transactions per minute, grouped by %s ('%s', '%s' or 'all')",
					TransactionTypeLabel, collector.TransactionTypeVote, collector.TransactionTypeNonVote,
				),
			},
			[]string{TransactionTypeLabel},
		),
		BlockTimeMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_block_time_seconds",
			Help: "Average seconds per slot over the latest sampling window.",
		}),
		FeesPerMinuteMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_fees_per_minute_lamports",
			Help: "Estimated non-vote transaction fees paid per minute.",
		}),
		FeeStatsMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_network_fee_lamports",
				Help: fmt.Sprintf("Distribution of non-vote transaction fees, grouped by %s", StatisticLabel),
			},
			[]string{StatisticLabel},
		),
		BlockRewardsPerMinuteMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_block_rewards_per_minute_lamports",
			Help: "Inflation rewards on the circulating supply, per minute.",
		}),
		ComputeUnitsPerMinuteMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_compute_units_per_minute",
			Help: "Estimated compute units consumed per minute.",
		}),
		ComputeUnitStatsMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_network_compute_units",
				Help: fmt.Sprintf("Distribution of compute units consumed per transaction, grouped by %s", StatisticLabel),
			},
			[]string{StatisticLabel},
		),
		TransactionsMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_network_sample_transactions",
				Help: fmt.Sprintf("Transactions seen in the latest sampling window, grouped by %s", TransactionTypeLabel),
			},
			[]string{TransactionTypeLabel},
		),
		ApiCallsMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_sample_rpc_calls",
			Help: "RPC calls made to produce the latest sample.",
		}),
		ExecutionTimeMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solana_network_sample_execution_seconds",
			Help: "Time taken to produce the latest sample.",
		}),
	}
	collector.MustRegister(
		registerer,
		p.TimestampMetric,
		p.StartSlotMetric,
		p.EndSlotMetric,
		p.BlockProductionRateMetric,
		p.TransactionsPerSecondMetric,
		p.TransactionsPerMinuteMetric,
		p.BlockTimeMetric,
		p.FeesPerMinuteMetric,
		p.FeeStatsMetric,
		p.BlockRewardsPerMinuteMetric,
		p.ComputeUnitsPerMinuteMetric,
		p.ComputeUnitStatsMetric,
		p.TransactionsMetric,
		p.ApiCallsMetric,
		p.ExecutionTimeMetric,
	)
	return &p
}

func (p *Prometheus) Save(_ context.Context, record collector.MetricsRecord) error {
	p.TimestampMetric.Set(float64(record.Timestamp.UnixMilli()) / 1_000)
	p.StartSlotMetric.Set(float64(record.StartSlot))
	p.EndSlotMetric.Set(float64(record.EndSlot))
	p.BlockProductionRateMetric.Set(record.BlockProductionRate)
	p.TransactionsPerSecondMetric.Set(record.TPS)
	p.TransactionsPerMinuteMetric.WithLabelValues("all").Set(record.TPM)
	p.TransactionsPerMinuteMetric.WithLabelValues(collector.TransactionTypeVote).Set(record.VoteTxPerMinute)
	p.TransactionsPerMinuteMetric.WithLabelValues(collector.TransactionTypeNonVote).Set(record.NonVoteTransactionRate)
	p.BlockTimeMetric.Set(record.Blocktime)
	p.FeesPerMinuteMetric.Set(record.FeesPerMinute)
	setSummary(p.FeeStatsMetric, record.FeeStats)
	p.BlockRewardsPerMinuteMetric.Set(record.BlockRewardsPerMinute)
	p.ComputeUnitsPerMinuteMetric.Set(record.ComputeUnitsPerMinute)
	setSummary(p.ComputeUnitStatsMetric, record.ComputeUnitStats)
	p.TransactionsMetric.WithLabelValues(collector.TransactionTypeVote).Set(float64(record.Transactions.Vote))
	p.TransactionsMetric.WithLabelValues(collector.TransactionTypeNonVote).Set(float64(record.Transactions.NonVote))
	p.ApiCallsMetric.Set(float64(record.ApiCallCount))
	p.ExecutionTimeMetric.Set(record.ExecutionTime)
	return nil
}

func setSummary(metric *prometheus.GaugeVec, summary stats.Summary) {
	metric.WithLabelValues("min").Set(summary.Min)
	metric.WithLabelValues("max").Set(summary.Max)
	metric.WithLabelValues("mean").Set(summary.Mean)
	metric.WithLabelValues("median").Set(summary.Median)
	metric.WithLabelValues("variance").Set(summary.Variance)
	metric.WithLabelValues("count").Set(float64(summary.Count))
}
