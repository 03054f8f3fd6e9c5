// Package sink holds the destinations a finished collector.MetricsRecord can be handed to.
package sink

import (
	"context"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"go.uber.org/multierr"
)

// Multi saves to every sink in order and returns all of their errors combined.
type Multi []collector.Sink

func (m Multi) Save(ctx context.Context, record collector.MetricsRecord) error {
	var err error
	for _, sink := range m {
		err = multierr.Append(err, sink.Save(ctx, record))
	}
	return err
}
