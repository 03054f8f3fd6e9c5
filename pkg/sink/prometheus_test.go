package sink

import (
	"context"
	"math"
	"testing"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Save(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	record := newTestRecord()
	require.NoError(t, p.Save(context.Background(), record))

	tests := []struct {
		name      string
		collector prometheus.Collector
		expected  float64
	}{
		{"timestamp", p.TimestampMetric, float64(record.Timestamp.Unix())},
		{"start slot", p.StartSlotMetric, 1000},
		{"end slot", p.EndSlotMetric, 1012},
		{"block production rate", p.BlockProductionRateMetric, 144},
		{"tps", p.TransactionsPerSecondMetric, 4000},
		{"tpm", p.TransactionsPerMinuteMetric.WithLabelValues("all"), 240_000},
		{"vote tpm", p.TransactionsPerMinuteMetric.WithLabelValues(collector.TransactionTypeVote), 180_000},
		{"non-vote tpm", p.TransactionsPerMinuteMetric.WithLabelValues(collector.TransactionTypeNonVote), 60_000},
		{"blocktime", p.BlockTimeMetric, 0.41},
		{"fees per minute", p.FeesPerMinuteMetric, 420_000_000},
		{"fee mean", p.FeeStatsMetric.WithLabelValues("mean"), 7000},
		{"fee count", p.FeeStatsMetric.WithLabelValues("count"), 5000},
		{"rewards", p.BlockRewardsPerMinuteMetric, 47_000_000_000},
		{"compute units per minute", p.ComputeUnitsPerMinuteMetric, 9e9},
		{"compute unit median", p.ComputeUnitStatsMetric.WithLabelValues("median"), 2100},
		{"vote transactions", p.TransactionsMetric.WithLabelValues(collector.TransactionTypeVote), 15000},
		{"api calls", p.ApiCallsMetric, 17},
		{"execution time", p.ExecutionTimeMetric, 6.2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, testutil.ToFloat64(test.collector))
		})
	}
}

func TestPrometheus_SaveOverwrites(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	record := newTestRecord()
	require.NoError(t, p.Save(context.Background(), record))

	record.TPS = 10
	record.Blocktime = math.NaN()
	require.NoError(t, p.Save(context.Background(), record))

	assert.Equal(t, float64(10), testutil.ToFloat64(p.TransactionsPerSecondMetric))
	assert.True(t, math.IsNaN(testutil.ToFloat64(p.BlockTimeMetric)))
}

func TestPrometheus_Registered(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := NewPrometheus(registry)
	require.NoError(t, p.Save(context.Background(), newTestRecord()))

	count, err := testutil.GatherAndCount(registry, "solana_network_fee_lamports", "solana_network_compute_units")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}
