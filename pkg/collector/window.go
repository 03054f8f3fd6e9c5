package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const DefaultSampleDuration = 5 * time.Second

type (
	// Window is the slot range [StartSlot, EndSlot] observed between StartTime and EndTime.
	Window struct {
		StartSlot int64
		EndSlot   int64
		StartTime time.Time
		EndTime   time.Time
	}

	// WindowSampler estimates block production from two getSlot reads a fixed real-time pause apart,
	// rather than scanning everything since the previous cycle.
	WindowSampler struct {
		client     Client
		clock      clock.Clock
		logger     *zap.SugaredLogger
		commitment rpc.Commitment
		duration   time.Duration
	}
)

func NewWindowSampler(client Client, clk clock.Clock, commitment rpc.Commitment, duration time.Duration) *WindowSampler {
	if duration <= 0 {
		duration = DefaultSampleDuration
	}
	return &WindowSampler{client: client, clock: clk, logger: slog.Get(), commitment: commitment, duration: duration}
}

// SampleWindow reads the current slot, waits for the sample duration and reads it again.
func (s *WindowSampler) SampleWindow(ctx context.Context) (Window, error) {
	startSlot, err := s.client.GetSlot(ctx, s.commitment)
	if err != nil {
		return Window{}, fmt.Errorf("failed to get window start slot: %w", err)
	}
	startTime := s.clock.Now()

	timer := s.clock.Timer(s.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Window{}, ctx.Err()
	case <-timer.C:
	}

	endSlot, err := s.client.GetSlot(ctx, s.commitment)
	if err != nil {
		return Window{}, fmt.Errorf("failed to get window end slot: %w", err)
	}
	endTime := s.clock.Now()

	if endSlot < startSlot {
		return Window{}, fmt.Errorf("slot went backwards from %v to %v", startSlot, endSlot)
	}
	s.logger.Debugf("Sampled window [%v -> %v] over %v", startSlot, endSlot, endTime.Sub(startTime))
	return Window{StartSlot: startSlot, EndSlot: endSlot, StartTime: startTime, EndTime: endTime}, nil
}

// Slots returns the number of slots that elapsed during the window.
func (w Window) Slots() int64 {
	return w.EndSlot - w.StartSlot
}

func (w Window) Elapsed() time.Duration {
	return w.EndTime.Sub(w.StartTime)
}

// BlockProductionRate returns slots per minute, or NaN for a zero-length window.
func (w Window) BlockProductionRate() float64 {
	minutes := w.Elapsed().Minutes()
	if minutes <= 0 {
		return math.NaN()
	}
	return float64(w.Slots()) / minutes
}
