package collector

import (
	"context"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"go.uber.org/atomic"
)

// Client is the subset of the Solana RPC API a collection cycle consumes. *rpc.Client satisfies it.
type Client interface {
	GetSlot(ctx context.Context, commitment rpc.Commitment) (int64, error)
	GetBlock(ctx context.Context, commitment rpc.Commitment, slot int64) (*rpc.Block, error)
	GetInflationRate(ctx context.Context) (*rpc.InflationRate, error)
	GetSupply(ctx context.Context, commitment rpc.Commitment) (*rpc.Supply, error)
}

// countingClient counts every call made through it, failed or not. One is created per cycle.
type countingClient struct {
	client  Client
	calls   *atomic.Int64
	metrics *Metrics
}

func newCountingClient(client Client, metrics *Metrics) *countingClient {
	return &countingClient{client: client, calls: atomic.NewInt64(0), metrics: metrics}
}

// Calls returns the number of upstream calls made so far.
func (c *countingClient) Calls() int64 {
	return c.calls.Load()
}

func (c *countingClient) count(method string) {
	c.calls.Inc()
	if c.metrics != nil {
		c.metrics.RpcCalls.WithLabelValues(method).Inc()
	}
}

func (c *countingClient) GetSlot(ctx context.Context, commitment rpc.Commitment) (int64, error) {
	c.count("getSlot")
	return c.client.GetSlot(ctx, commitment)
}

func (c *countingClient) GetBlock(ctx context.Context, commitment rpc.Commitment, slot int64) (*rpc.Block, error) {
	c.count("getBlock")
	return c.client.GetBlock(ctx, commitment, slot)
}

func (c *countingClient) GetInflationRate(ctx context.Context) (*rpc.InflationRate, error) {
	c.count("getInflationRate")
	return c.client.GetInflationRate(ctx)
}

func (c *countingClient) GetSupply(ctx context.Context, commitment rpc.Commitment) (*rpc.Supply, error) {
	c.count("getSupply")
	return c.client.GetSupply(ctx, commitment)
}
