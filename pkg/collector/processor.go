package collector

import (
	"context"
	"fmt"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 40

type (
	Processor struct {
		fetcher *BlockFetcher
		logger  *zap.SugaredLogger
		// batchSize caps the number of getBlock calls in flight.
		batchSize int
		// sampleSize is handed to the accumulators for their median sample.
		sampleSize int
	}

	// BlockStats is what a slot range reduces to.
	BlockStats struct {
		NonVoteCount int64
		VoteCount    int64
		// Fees holds the fee, in lamports, of every non-vote transaction.
		Fees *stats.Streaming
		// ComputeUnits holds the consumed compute units of every transaction that reports them, votes included.
		ComputeUnits *stats.Streaming

		SlotsFetched int64
		SlotsSkipped int64
	}
)

func NewProcessor(fetcher *BlockFetcher, batchSize int, sampleSize int) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{fetcher: fetcher, logger: slog.Get(), batchSize: batchSize, sampleSize: sampleSize}
}

// Process fetches every block in [startSlot, endSlot] and folds its transactions into BlockStats.
// Slots are fetched in consecutive batches of batchSize; a batch starts only after the previous one has settled.
// The first unrecoverable fetch error aborts the run.
func (p *Processor) Process(ctx context.Context, startSlot, endSlot int64) (*BlockStats, error) {
	if endSlot < startSlot {
		return nil, fmt.Errorf("invalid slot range [%v, %v]", startSlot, endSlot)
	}
	p.logger.Debugf("Processing blocks in [%v -> %v]", startSlot, endSlot)

	result := &BlockStats{Fees: stats.NewStreaming(p.sampleSize), ComputeUnits: stats.NewStreaming(p.sampleSize)}
	for batchStart := startSlot; batchStart <= endSlot; batchStart += int64(p.batchSize) {
		batchEnd := min(batchStart+int64(p.batchSize)-1, endSlot)
		blocks, err := p.fetchBatch(ctx, batchStart, batchEnd)
		if err != nil {
			return nil, err
		}
		// folding happens here, in slot order, so the accumulators need no locking
		for _, block := range blocks {
			if block == nil {
				result.SlotsSkipped++
				continue
			}
			result.SlotsFetched++
			result.addBlock(block)
		}
	}

	p.logger.Debugf(
		"Processed blocks in [%v -> %v]: %d fetched, %d skipped",
		startSlot, endSlot, result.SlotsFetched, result.SlotsSkipped,
	)
	return result, nil
}

// fetchBatch fetches [from, to] concurrently. The returned slice is indexed by slot - from.
func (p *Processor) fetchBatch(ctx context.Context, from, to int64) ([]*rpc.Block, error) {
	blocks := make([]*rpc.Block, to-from+1)
	group, groupCtx := errgroup.WithContext(ctx)
	for slot := from; slot <= to; slot++ {
		group.Go(func() error {
			block, err := p.fetcher.Fetch(groupCtx, slot)
			if err != nil {
				return err
			}
			blocks[slot-from] = block
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch batch [%v -> %v]: %w", from, to, err)
	}
	return blocks, nil
}

func (s *BlockStats) addBlock(block *rpc.Block) {
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if Classify(tx) == Vote {
			s.VoteCount++
		} else {
			s.NonVoteCount++
			if tx.Meta != nil {
				s.Fees.Update(float64(tx.Meta.Fee))
			}
		}

		if tx.Meta != nil && tx.Meta.ComputeUnitsConsumed != nil {
			s.ComputeUnits.Update(float64(*tx.Meta.ComputeUnitsConsumed))
		}
	}
}
