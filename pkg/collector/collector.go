package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type (
	// Sink accepts finished records. A Save error fails the cycle it belongs to.
	Sink interface {
		Save(ctx context.Context, record MetricsRecord) error
	}

	Config struct {
		Commitment     rpc.Commitment
		SampleDuration time.Duration
		BatchSize      int
		MaxAttempts    int
		RetryDelay     time.Duration
		// MedianSampleSize bounds the values kept per accumulator for the median.
		MedianSampleSize int
		// CycleTimeout, if positive, is a deadline for a whole cycle. Zero means cycles run to completion.
		CycleTimeout time.Duration
		// Clock defaults to the wall clock.
		Clock clock.Clock
	}

	// Collector runs at most one collection cycle at a time. A tick that arrives while a cycle is in
	// flight does nothing; the next tick starts a fresh, independent window.
	Collector struct {
		client  Client
		sink    Sink
		config  Config
		clock   clock.Clock
		logger  *zap.SugaredLogger
		metrics *Metrics

		collecting atomic.Bool
	}
)

func NewCollector(client Client, sink Sink, config Config, metrics *Metrics) *Collector {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Collector{
		client:  client,
		sink:    sink,
		config:  config,
		clock:   clk,
		logger:  slog.Get(),
		metrics: metrics,
	}
}

// Collecting reports whether a cycle is in flight.
func (c *Collector) Collecting() bool {
	return c.collecting.Load()
}

// Run calls Tick every interval until ctx is done, then waits for the in-flight cycle. Each tick runs on its
// own goroutine, so a slow cycle makes later ticks skip rather than queue.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	c.logger.Infof("Starting metrics collector, running every %vs", interval.Seconds())

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping metrics collector, waiting for in-flight collection...")
			wg.Wait()
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Tick(ctx)
			}()
		}
	}
}

// Tick runs one collection cycle and hands the record to the sink. It returns the cycle's error, which has
// already been logged; a skipped tick returns nil. The in-progress flag is released on every exit path,
// panics included.
func (c *Collector) Tick(ctx context.Context) (err error) {
	if !c.collecting.CompareAndSwap(false, true) {
		c.logger.Info("Metrics collection already in progress, skipping this tick.")
		c.metrics.Cycles.WithLabelValues(CycleSkipped).Inc()
		return nil
	}
	defer c.collecting.Store(false)

	var started time.Time
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metrics collection panicked: %v", r)
			c.logger.Error(err)
		}
		status := CycleSucceeded
		if err != nil {
			status = CycleFailed
		}
		c.metrics.Cycles.WithLabelValues(status).Inc()
		if !started.IsZero() {
			c.metrics.CycleDuration.Set(c.clock.Since(started).Seconds())
		}
		c.metrics.Collecting.Set(0)
	}()
	c.metrics.Collecting.Set(1)
	started = c.clock.Now()

	if c.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CycleTimeout)
		defer cancel()
	}

	c.logger.Info("Starting metrics collection")
	record, err := c.collect(ctx, started)
	if err != nil {
		c.logger.Errorf("Error in metrics collection: %v", err)
		return err
	}
	if err = c.sink.Save(ctx, record); err != nil {
		err = fmt.Errorf("failed to save metrics: %w", err)
		c.logger.Errorf("Error in metrics collection: %v", err)
		return err
	}

	c.logger.Infow(
		"Metrics collected and saved successfully",
		"executionTime", record.ExecutionTime,
		"apiCalls", record.ApiCallCount,
		"slots", fmt.Sprintf("[%d -> %d]", record.StartSlot, record.EndSlot),
	)
	return nil
}

func (c *Collector) collect(ctx context.Context, started time.Time) (MetricsRecord, error) {
	client := newCountingClient(c.client, c.metrics)

	window, err := NewWindowSampler(client, c.clock, c.config.Commitment, c.config.SampleDuration).SampleWindow(ctx)
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("failed to sample window: %w", err)
	}

	fetcher := NewBlockFetcher(client, c.clock, c.config.Commitment, c.config.MaxAttempts, c.config.RetryDelay)
	processor := NewProcessor(fetcher, c.config.BatchSize, c.config.MedianSampleSize)
	blockStats, err := processor.Process(ctx, window.StartSlot, window.EndSlot)
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("failed to process blocks: %w", err)
	}
	c.metrics.Slots.WithLabelValues(SlotFetched).Add(float64(blockStats.SlotsFetched))
	c.metrics.Slots.WithLabelValues(SlotSkipped).Add(float64(blockStats.SlotsSkipped))

	feeStats, err := blockStats.Fees.Snapshot()
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("fee statistics: %w", err)
	}
	computeUnitStats, err := blockStats.ComputeUnits.Snapshot()
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("compute unit statistics: %w", err)
	}

	r, err := deriveRates(window, blockStats, feeStats, computeUnitStats)
	if err != nil {
		return MetricsRecord{}, err
	}
	if window.Slots() == 0 {
		c.logger.Warnf("No slots elapsed in window starting at %v, blocktime is undefined", window.StartSlot)
	}

	rewardsPerMinute, err := fetchBlockRewardsPerMinute(ctx, client, c.config.Commitment)
	if err != nil {
		return MetricsRecord{}, err
	}

	return MetricsRecord{
		Timestamp:              c.clock.Now().UTC(),
		StartSlot:              window.StartSlot,
		EndSlot:                window.EndSlot,
		BlockProductionRate:    window.BlockProductionRate(),
		NonVoteTransactionRate: r.nonVoteTransactionRate,
		VoteTxPerMinute:        r.voteTxPerMinute,
		TPS:                    r.tps,
		TPM:                    r.tpm,
		Blocktime:              r.blocktime,
		FeesPerMinute:          r.feesPerMinute,
		FeeStats:               feeStats,
		BlockRewardsPerMinute:  rewardsPerMinute,
		ComputeUnitsPerMinute:  r.computeUnitsPerMinute,
		ComputeUnitStats:       computeUnitStats,
		ApiCallCount:           client.Calls(),
		ExecutionTime:          c.clock.Since(started).Seconds(),
		Transactions: TransactionCounts{
			Total:   blockStats.NonVoteCount + blockStats.VoteCount,
			NonVote: blockStats.NonVoteCount,
			Vote:    blockStats.VoteCount,
		},
	}, nil
}

var _ Client = (*rpc.Client)(nil)
