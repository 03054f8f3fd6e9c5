package sink

import (
	"context"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"go.uber.org/zap"
)

// Log writes each record as one structured log line.
type Log struct {
	logger *zap.SugaredLogger
}

func NewLog() *Log {
	return &Log{logger: slog.Get()}
}

func (l *Log) Save(_ context.Context, record collector.MetricsRecord) error {
	l.logger.Infow(
		"Network metrics",
		"timestamp", record.Timestamp,
		"startSlot", record.StartSlot,
		"endSlot", record.EndSlot,
		"blockProductionRate", record.BlockProductionRate,
		"nonVoteTransactionRate", record.NonVoteTransactionRate,
		"voteTxPerMinute", record.VoteTxPerMinute,
		"tps", record.TPS,
		"tpm", record.TPM,
		"blocktime", record.Blocktime,
		"feesPerMinute", record.FeesPerMinute,
		"feeStats", record.FeeStats,
		"blockRewardsPerMinute", record.BlockRewardsPerMinute,
		"computeUnitsPerMinute", record.ComputeUnitsPerMinute,
		"computeUnitStats", record.ComputeUnitStats,
		"apiCallCount", record.ApiCallCount,
		"executionTime", record.ExecutionTime,
		"transactions", record.Transactions,
	)
	return nil
}
