package rpc

import (
	"os"
	"testing"

	"github.com/asymmetric-research/solana-metrics/pkg/slog"
)

func TestMain(m *testing.M) {
	slog.Init("")
	code := m.Run()
	os.Exit(code)
}
