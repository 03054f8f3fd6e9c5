package collector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestConfig(clk clock.Clock) Config {
	return Config{
		Commitment:     rpc.CommitmentConfirmed,
		SampleDuration: 20 * time.Millisecond,
		BatchSize:      4,
		MaxAttempts:    3,
		Clock:          clk,
	}
}

// newScenarioClient scripts the window [1000, 1009]: slots 1002, 1005 and 1007 are skipped and the other
// seven blocks hold 50 non-vote and 10 vote transactions. It returns the fees it used.
func newScenarioClient() (*fakeClient, []float64) {
	client := newFakeClient(1_000, 1_009)
	var (
		nonVotesPerBlock = []int{8, 8, 7, 7, 7, 7, 6}
		votesPerBlock    = []int{2, 2, 1, 1, 1, 1, 2}
		produced         = []int64{1_000, 1_001, 1_003, 1_004, 1_006, 1_008, 1_009}
		fees             []float64
	)
	for i, slot := range produced {
		block := &rpc.Block{ParentSlot: slot - 1}
		for j := 0; j < votesPerBlock[i]; j++ {
			block.Transactions = append(block.Transactions, voteTx())
		}
		for j := 0; j < nonVotesPerBlock[i]; j++ {
			fee := int64(5_000 + 100*(len(fees)%7))
			fees = append(fees, float64(fee))
			block.Transactions = append(block.Transactions, transferTx(fee, int64Ptr(450)))
		}
		client.blocks[slot] = block
	}
	return client, fees
}

func TestCollector_Tick_EndToEnd(t *testing.T) {
	client, fees := newScenarioClient()
	sink := &fakeSink{}
	metrics := newTestMetrics()
	collector := NewCollector(client, sink, newTestConfig(clock.New()), metrics)

	require.NoError(t, collector.Tick(context.Background()))
	require.Len(t, sink.Records(), 1)
	record := sink.Records()[0]

	var feeSum float64
	for _, fee := range fees {
		feeSum += fee
	}
	require.Len(t, fees, 50)

	assert.Equal(t, TransactionCounts{Total: 60, NonVote: 50, Vote: 10}, record.Transactions)
	assert.Equal(t, int64(1_000), record.StartSlot)
	assert.Equal(t, int64(1_009), record.EndSlot)
	assert.Equal(t, int64(50), record.FeeStats.Count)
	assert.InDelta(t, feeSum/50, record.FeeStats.Mean, 1e-9)
	assert.Equal(t, float64(5_000), record.FeeStats.Min)
	assert.Equal(t, float64(5_600), record.FeeStats.Max)
	assert.Equal(t, int64(60), record.ComputeUnitStats.Count)

	secondsElapsed := float64(60) / record.TPS
	assert.InEpsilon(t, secondsElapsed/9, record.Blocktime, 1e-9)
	assert.InEpsilon(t, record.TPS*60, record.TPM, 1e-9)
	assert.InEpsilon(t, record.NonVoteTransactionRate/5, record.VoteTxPerMinute, 1e-9)
	assert.InDelta(t, record.FeeStats.Mean*record.NonVoteTransactionRate, record.FeesPerMinute, 1e-6)
	assert.InDelta(t, record.ComputeUnitStats.Mean*record.NonVoteTransactionRate, record.ComputeUnitsPerMinute, 1e-6)
	assert.InEpsilon(t, 9/(secondsElapsed/60), record.BlockProductionRate, 1e-9)
	// 525.6M lamports at 5% a year is 50 lamports a minute
	assert.InDelta(t, 50, record.BlockRewardsPerMinute, 1e-9)
	// 2 getSlot + 10 getBlock + getInflationRate + getSupply
	assert.Equal(t, int64(14), record.ApiCallCount)
	assert.Greater(t, record.ExecutionTime, float64(0))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Cycles.WithLabelValues(CycleSucceeded)))
	assert.Equal(t, float64(10), testutil.ToFloat64(metrics.RpcCalls.WithLabelValues("getBlock")))
	assert.Equal(t, float64(7), testutil.ToFloat64(metrics.Slots.WithLabelValues(SlotFetched)))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Slots.WithLabelValues(SlotSkipped)))
	assert.False(t, collector.Collecting())
}

func TestCollector_Tick_ApiCallCountIsPerCycle(t *testing.T) {
	client, _ := newScenarioClient()
	sink := &fakeSink{}
	collector := NewCollector(client, sink, newTestConfig(clock.New()), newTestMetrics())

	require.NoError(t, collector.Tick(context.Background()))
	require.NoError(t, collector.Tick(context.Background()))
	records := sink.Records()
	require.Len(t, records, 2)
	// the second window is [1009, 1009]
	assert.Equal(t, int64(14), records[0].ApiCallCount)
	assert.Equal(t, int64(5), records[1].ApiCallCount)
}

func TestCollector_Tick_Reentrant(t *testing.T) {
	client, _ := newScenarioClient()
	sink := &fakeSink{}
	mock := clock.NewMock()
	config := newTestConfig(mock)
	config.SampleDuration = 5 * time.Second
	metrics := newTestMetrics()
	collector := NewCollector(client, sink, config, metrics)

	var (
		firstErr error
		done     atomic.Bool
	)
	go func() {
		firstErr = collector.Tick(context.Background())
		done.Store(true)
	}()
	// the first tick is now parked in the sampling pause:
	require.Eventually(t, func() bool { return client.slotCalls.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, collector.Collecting())

	assert.NoError(t, collector.Tick(context.Background()))
	assert.Equal(t, int64(0), client.blockCalls.Load())
	assert.Equal(t, int64(1), client.slotCalls.Load())
	assert.Empty(t, sink.Records())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Cycles.WithLabelValues(CycleSkipped)))

	advanceUntil(t, mock, time.Second, done.Load)
	require.NoError(t, firstErr)
	assert.Len(t, sink.Records(), 1)
	assert.Equal(t, int64(10), client.blockCalls.Load())
	assert.False(t, collector.Collecting())
}

func TestCollector_Tick_ReleasesOnSaveFailure(t *testing.T) {
	client, _ := newScenarioClient()
	sink := &fakeSink{err: errors.New("clickhouse: connection refused")}
	metrics := newTestMetrics()
	collector := NewCollector(client, sink, newTestConfig(clock.New()), metrics)

	err := collector.Tick(context.Background())
	assert.ErrorIs(t, err, sink.err)
	assert.False(t, collector.Collecting())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Cycles.WithLabelValues(CycleFailed)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Collecting))

	// the next tick is unaffected:
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	assert.NoError(t, collector.Tick(context.Background()))
	assert.Len(t, sink.Records(), 1)
}

type panickingSink struct{}

func (panickingSink) Save(context.Context, MetricsRecord) error {
	panic("nil map write")
}

func TestCollector_Tick_ReleasesOnPanic(t *testing.T) {
	client, _ := newScenarioClient()
	collector := NewCollector(client, panickingSink{}, newTestConfig(clock.New()), newTestMetrics())

	err := collector.Tick(context.Background())
	assert.ErrorContains(t, err, "panicked")
	assert.False(t, collector.Collecting())
}

func TestCollector_Tick_NilMetrics(t *testing.T) {
	client, _ := newScenarioClient()
	sink := &fakeSink{}
	collector := NewCollector(client, sink, newTestConfig(clock.New()), nil)

	require.NoError(t, collector.Tick(context.Background()))
	assert.False(t, collector.Collecting())
	assert.Len(t, sink.Records(), 1)
}

// brokenClock panics before a cycle has read the time.
type brokenClock struct {
	clock.Clock
}

func (brokenClock) Now() time.Time {
	panic("clock unavailable")
}

func TestCollector_Tick_ReleasesOnEarlyPanic(t *testing.T) {
	client, _ := newScenarioClient()
	sink := &fakeSink{}
	metrics := newTestMetrics()
	collector := NewCollector(client, sink, newTestConfig(brokenClock{clock.New()}), metrics)

	err := collector.Tick(context.Background())
	assert.ErrorContains(t, err, "panicked")
	assert.False(t, collector.Collecting())
	assert.Empty(t, sink.Records())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Cycles.WithLabelValues(CycleFailed)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Collecting))
}

func TestCollector_Tick_EmptyAccumulator(t *testing.T) {
	// every slot in the window is skipped
	client := newFakeClient(2_000, 2_004)
	sink := &fakeSink{}
	collector := NewCollector(client, sink, newTestConfig(clock.New()), newTestMetrics())

	err := collector.Tick(context.Background())
	assert.ErrorIs(t, err, stats.ErrEmptyAccumulator)
	assert.Empty(t, sink.Records())
	assert.Equal(t, int64(5), client.blockCalls.Load())
	assert.False(t, collector.Collecting())
}

func TestCollector_Tick_NoSlotsElapsed(t *testing.T) {
	client := newFakeClient(3_000, 3_000)
	client.blocks[3_000] = &rpc.Block{Transactions: []rpc.TransactionWithMeta{voteTx(), transferTx(5_000, int64Ptr(200))}}
	sink := &fakeSink{}
	collector := NewCollector(client, sink, newTestConfig(clock.New()), newTestMetrics())

	require.NoError(t, collector.Tick(context.Background()))
	require.Len(t, sink.Records(), 1)
	record := sink.Records()[0]
	assert.True(t, math.IsNaN(record.Blocktime))
	assert.Equal(t, float64(0), record.BlockProductionRate)
	assert.Equal(t, int64(2), record.Transactions.Total)
}

func TestCollector_Tick_FetchFailure(t *testing.T) {
	client, _ := newScenarioClient()
	client.failures[1_004] = 100
	sink := &fakeSink{}
	collector := NewCollector(client, sink, newTestConfig(clock.New()), newTestMetrics())

	err := collector.Tick(context.Background())
	assert.ErrorIs(t, err, errTransient)
	assert.Empty(t, sink.Records())
	assert.False(t, collector.Collecting())
}

func TestCollector_Tick_CycleTimeout(t *testing.T) {
	client, _ := newScenarioClient()
	config := newTestConfig(clock.New())
	config.SampleDuration = time.Hour
	config.CycleTimeout = 20 * time.Millisecond
	collector := NewCollector(client, &fakeSink{}, config, newTestMetrics())

	err := collector.Tick(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, collector.Collecting())
}

func TestCollector_Run(t *testing.T) {
	client := newFakeClient(4_000, 4_001)
	client.blocks[4_000] = &rpc.Block{Transactions: []rpc.TransactionWithMeta{transferTx(5_000, int64Ptr(200))}}
	client.blocks[4_001] = &rpc.Block{Transactions: []rpc.TransactionWithMeta{transferTx(6_000, int64Ptr(300))}}
	sink := &fakeSink{}
	config := newTestConfig(clock.New())
	config.SampleDuration = time.Millisecond
	collector := NewCollector(client, sink, config, newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		collector.Run(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return len(sink.Records()) >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.False(t, collector.Collecting())
}
