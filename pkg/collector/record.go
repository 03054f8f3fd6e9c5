package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
)

const minutesPerYear = 365 * 24 * 60

type (
	TransactionCounts struct {
		Total   int64 `json:"total"`
		NonVote int64 `json:"nonVote"`
		Vote    int64 `json:"vote"`
	}

	// MetricsRecord is the output of one collection cycle. Rates are per minute unless named otherwise,
	// amounts are in lamports, ExecutionTime is in seconds.
	MetricsRecord struct {
		Timestamp              time.Time         `json:"timestamp"`
		StartSlot              int64             `json:"startSlot"`
		EndSlot                int64             `json:"endSlot"`
		BlockProductionRate    float64           `json:"blockProductionRate"`
		NonVoteTransactionRate float64           `json:"nonVoteTransactionRate"`
		VoteTxPerMinute        float64           `json:"voteTxPerMinute"`
		TPS                    float64           `json:"tps"`
		TPM                    float64           `json:"tpm"`
		Blocktime              float64           `json:"blocktime"`
		FeesPerMinute          float64           `json:"feesPerMinute"`
		FeeStats               stats.Summary     `json:"feeStats"`
		BlockRewardsPerMinute  float64           `json:"blockRewardsPerMinute"`
		ComputeUnitsPerMinute  float64           `json:"computeUnitsPerMinute"`
		ComputeUnitStats       stats.Summary     `json:"computeUnitStats"`
		ApiCallCount           int64             `json:"apiCallCount"`
		ExecutionTime          float64           `json:"executionTime"`
		Transactions           TransactionCounts `json:"transactions"`
	}

	// rates are the figures derived from a window and its block stats.
	rates struct {
		tps                    float64
		tpm                    float64
		voteTxPerMinute        float64
		nonVoteTransactionRate float64
		blocktime              float64
		feesPerMinute          float64
		computeUnitsPerMinute  float64
	}
)

// deriveRates computes throughput, block time and fee/compute rates. Blocktime is NaN when no slot elapsed.
func deriveRates(window Window, blockStats *BlockStats, feeStats, computeUnitStats stats.Summary) (rates, error) {
	seconds := window.Elapsed().Seconds()
	if seconds <= 0 {
		return rates{}, fmt.Errorf("window [%v -> %v] has no elapsed time", window.StartSlot, window.EndSlot)
	}
	minutes := seconds / 60
	total := float64(blockStats.NonVoteCount + blockStats.VoteCount)

	r := rates{
		tps:                    total / seconds,
		tpm:                    total / minutes,
		voteTxPerMinute:        float64(blockStats.VoteCount) / minutes,
		nonVoteTransactionRate: float64(blockStats.NonVoteCount) / minutes,
		blocktime:              math.NaN(),
	}
	if slots := window.Slots(); slots > 0 {
		r.blocktime = seconds / float64(slots)
	}
	r.feesPerMinute = feeStats.Mean * r.nonVoteTransactionRate
	r.computeUnitsPerMinute = computeUnitStats.Mean * r.nonVoteTransactionRate
	return r, nil
}

// fetchBlockRewardsPerMinute spreads a year of inflation on the circulating supply evenly over its minutes.
func fetchBlockRewardsPerMinute(ctx context.Context, client Client, commitment rpc.Commitment) (float64, error) {
	inflation, err := client.GetInflationRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get inflation rate: %w", err)
	}
	supply, err := client.GetSupply(ctx, commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get supply: %w", err)
	}
	return float64(supply.Circulating) * inflation.Total / minutesPerYear, nil
}
