package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const DefaultMaxAttempts = 3

type BlockFetcher struct {
	client     Client
	clock      clock.Clock
	logger     *zap.SugaredLogger
	commitment rpc.Commitment
	// maxAttempts bounds the getBlock calls made for a single slot.
	maxAttempts int
	// retryDelay is multiplied by the attempt number to space out retries.
	retryDelay time.Duration
}

// NewBlockFetcher paces retries on clk, the wall clock if nil.
func NewBlockFetcher(
	client Client, clk clock.Clock, commitment rpc.Commitment, maxAttempts int, retryDelay time.Duration,
) *BlockFetcher {
	if clk == nil {
		clk = clock.New()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &BlockFetcher{
		client:      client,
		clock:       clk,
		logger:      slog.Get(),
		commitment:  commitment,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Fetch returns the block at slot. A slot that will never have a block (skipped, lost to a ledger jump, not
// available) yields a nil block and no error, without retrying. Any other error is retried up to maxAttempts
// times in total and then returned.
func (f *BlockFetcher) Fetch(ctx context.Context, slot int64) (*rpc.Block, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		block, err := f.client.GetBlock(ctx, f.commitment, slot)
		if err == nil {
			return block, nil
		}
		if rpc.IsSlotUnavailable(err) {
			f.logger.Debugf("slot %v has no block: %v", slot, err)
			return nil, nil
		}
		lastErr = err
		if attempt == f.maxAttempts {
			break
		}

		f.logger.Debugf("failed to fetch slot %v (attempt %d/%d), retrying: %v", slot, attempt, f.maxAttempts, err)
		if err := sleepContext(ctx, f.clock, f.retryDelay*time.Duration(attempt)); err != nil {
			return nil, fmt.Errorf("fetching slot %v: %w", slot, err)
		}
	}
	return nil, fmt.Errorf("failed to fetch slot %v after %d attempts: %w", slot, f.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
