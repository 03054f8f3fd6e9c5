package collector

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// advanceUntil moves the mock clock forward in steps until done reports true.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, done func() bool) {
	t.Helper()
	assert.Eventually(t, func() bool {
		if done() {
			return true
		}
		mock.Add(step)
		return done()
	}, 5*time.Second, time.Millisecond)
}

func TestWindowSampler_SampleWindow(t *testing.T) {
	client := newFakeClient(1_000, 1_012)
	mock := clock.NewMock()
	sampler := NewWindowSampler(client, mock, rpc.CommitmentConfirmed, 5*time.Second)

	var (
		window Window
		err    error
		done   atomic.Bool
	)
	go func() {
		window, err = sampler.SampleWindow(context.Background())
		done.Store(true)
	}()
	advanceUntil(t, mock, time.Second, done.Load)

	require.NoError(t, err)
	assert.Equal(t, int64(1_000), window.StartSlot)
	assert.Equal(t, int64(1_012), window.EndSlot)
	assert.Equal(t, int64(12), window.Slots())
	assert.GreaterOrEqual(t, window.Elapsed(), 5*time.Second)
	assert.Equal(t, int64(2), client.slotCalls.Load())
}

func TestWindowSampler_SampleWindow_Cancelled(t *testing.T) {
	client := newFakeClient(1_000, 1_012)
	sampler := NewWindowSampler(client, clock.NewMock(), rpc.CommitmentConfirmed, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := sampler.SampleWindow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), client.slotCalls.Load())
}

func TestWindowSampler_SampleWindow_Backwards(t *testing.T) {
	client := newFakeClient(1_000, 999)
	sampler := NewWindowSampler(client, clock.New(), rpc.CommitmentConfirmed, time.Millisecond)

	_, err := sampler.SampleWindow(context.Background())
	assert.Error(t, err)
}

func TestWindow_BlockProductionRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := Window{StartSlot: 100, EndSlot: 112, StartTime: start, EndTime: start.Add(5 * time.Second)}
	// 12 slots in 1/12 of a minute
	assert.InDelta(t, 144, window.BlockProductionRate(), 1e-9)

	window.EndTime = start
	assert.True(t, math.IsNaN(window.BlockProductionRate()))
}
