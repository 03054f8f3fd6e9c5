package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
	"go.uber.org/zap"
)

const (
	DefaultClickHouseDatabase = "default"
	// ClickHouseTable is the table created by the embedded migrations, the only one Save writes to.
	ClickHouseTable = "network_metrics"
)

// columns is the insert order of recordRow.
var columns = []string{
	"timestamp",
	"start_slot",
	"end_slot",
	"block_production_rate",
	"non_vote_transaction_rate",
	"vote_tx_per_minute",
	"tps",
	"tpm",
	"blocktime",
	"fees_per_minute",
	"fee_count",
	"fee_min",
	"fee_max",
	"fee_mean",
	"fee_median",
	"fee_variance",
	"block_rewards_per_minute",
	"compute_units_per_minute",
	"compute_units_count",
	"compute_units_min",
	"compute_units_max",
	"compute_units_mean",
	"compute_units_median",
	"compute_units_variance",
	"api_call_count",
	"execution_time",
	"transactions_total",
	"transactions_non_vote",
	"transactions_vote",
}

type (
	// ClickHouseConfig configures the ClickHouse sink.
	ClickHouseConfig struct {
		Enabled bool `yaml:"enabled"`

		// Endpoint is the ClickHouse native protocol address, e.g. localhost:9000.
		Endpoint string `yaml:"endpoint"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`

		// Migrate applies pending schema migrations on startup.
		Migrate bool `yaml:"migrate"`
	}

	// ClickHouse appends one row per record.
	ClickHouse struct {
		logger *zap.SugaredLogger
		cfg    ClickHouseConfig
		conn   clickhouse.Conn
	}
)

// DSN is the migrate-style connection string for the configured database.
func (c ClickHouseConfig) DSN() string {
	dsn := url.URL{Scheme: "clickhouse", Host: c.Endpoint, Path: "/" + c.Database}
	if c.Username != "" {
		dsn.User = url.UserPassword(c.Username, c.Password)
	}
	return dsn.String()
}

func NewClickHouse(cfg ClickHouseConfig) *ClickHouse {
	if cfg.Database == "" {
		cfg.Database = DefaultClickHouseDatabase
	}
	return &ClickHouse{logger: slog.Get(), cfg: cfg}
}

// Start opens and pings the connection.
func (c *ClickHouse) Start(ctx context.Context) error {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{c.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: c.cfg.Database,
			Username: c.cfg.Username,
			Password: c.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		//goland:noinspection GoUnhandledErrorResult
		conn.Close()
		return fmt.Errorf("pinging ClickHouse: %w", err)
	}
	c.conn = conn
	c.logger.Infow("ClickHouse sink connected", "endpoint", c.cfg.Endpoint, "table", c.table())
	return nil
}

func (c *ClickHouse) Stop() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *ClickHouse) Save(ctx context.Context, record collector.MetricsRecord) error {
	if c.conn == nil {
		return fmt.Errorf("ClickHouse sink not started")
	}
	batch, err := c.conn.PrepareBatch(ctx, insertQuery(c.table()))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}
	if err := batch.Append(recordRow(record)...); err != nil {
		//goland:noinspection GoUnhandledErrorResult
		batch.Abort()
		return fmt.Errorf("appending row for slots [%v -> %v]: %w", record.StartSlot, record.EndSlot, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending row for slots [%v -> %v]: %w", record.StartSlot, record.EndSlot, err)
	}
	c.logger.Debugf("Saved record for slots [%v -> %v] to %s", record.StartSlot, record.EndSlot, c.table())
	return nil
}

func (c *ClickHouse) table() string {
	return fmt.Sprintf("%s.%s", c.cfg.Database, ClickHouseTable)
}

func insertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
}

// recordRow flattens a record in the order of columns.
func recordRow(record collector.MetricsRecord) []any {
	row := []any{
		record.Timestamp.UTC(),
		uint64(record.StartSlot),
		uint64(record.EndSlot),
		record.BlockProductionRate,
		record.NonVoteTransactionRate,
		record.VoteTxPerMinute,
		record.TPS,
		record.TPM,
		record.Blocktime,
		record.FeesPerMinute,
	}
	row = append(row, summaryRow(record.FeeStats)...)
	row = append(row, record.BlockRewardsPerMinute, record.ComputeUnitsPerMinute)
	row = append(row, summaryRow(record.ComputeUnitStats)...)
	return append(
		row,
		uint64(record.ApiCallCount),
		record.ExecutionTime,
		uint64(record.Transactions.Total),
		uint64(record.Transactions.NonVote),
		uint64(record.Transactions.Vote),
	)
}

func summaryRow(summary stats.Summary) []any {
	return []any{
		uint64(summary.Count),
		summary.Min,
		summary.Max,
		summary.Mean,
		summary.Median,
		summary.Variance,
	}
}
