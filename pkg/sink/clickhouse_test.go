package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRow(t *testing.T) {
	record := newTestRecord()
	row := recordRow(record)
	require.Len(t, row, len(columns))

	values := make(map[string]any, len(columns))
	for i, column := range columns {
		values[column] = row[i]
	}
	assert.Equal(t, record.Timestamp, values["timestamp"])
	assert.Equal(t, uint64(1000), values["start_slot"])
	assert.Equal(t, uint64(1012), values["end_slot"])
	assert.Equal(t, 240_000.0, values["tpm"])
	assert.Equal(t, uint64(5000), values["fee_count"])
	assert.Equal(t, 90_000.0, values["fee_max"])
	assert.Equal(t, 7000.0, values["fee_mean"])
	assert.Equal(t, 47_000_000_000.0, values["block_rewards_per_minute"])
	assert.Equal(t, uint64(20000), values["compute_units_count"])
	assert.Equal(t, 2100.0, values["compute_units_median"])
	assert.Equal(t, uint64(17), values["api_call_count"])
	assert.Equal(t, uint64(15000), values["transactions_vote"])
}

func TestRecordRow_UTC(t *testing.T) {
	record := newTestRecord()
	record.Timestamp = record.Timestamp.In(time.FixedZone("UTC+2", 2*60*60))
	row := recordRow(record)
	assert.Equal(t, time.UTC, row[0].(time.Time).Location())
}

func TestInsertQuery(t *testing.T) {
	query := insertQuery("default.network_metrics")
	assert.Contains(t, query, "INSERT INTO default.network_metrics (timestamp, start_slot, end_slot,")
	assert.Contains(t, query, "transactions_vote)")
}

func TestNewClickHouse_Defaults(t *testing.T) {
	c := NewClickHouse(ClickHouseConfig{Endpoint: "localhost:9000"})
	assert.Equal(t, "default.network_metrics", c.table())

	// the database is configurable, the table is always the migrated one:
	c = NewClickHouse(ClickHouseConfig{Endpoint: "localhost:9000", Database: "solana"})
	assert.Equal(t, "solana."+ClickHouseTable, c.table())
}

func TestClickHouse_SaveNotStarted(t *testing.T) {
	c := NewClickHouse(ClickHouseConfig{Endpoint: "localhost:9000"})
	assert.Error(t, c.Save(context.Background(), newTestRecord()))
	assert.NoError(t, c.Stop())
}

func TestClickHouseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ClickHouseConfig
		expected string
	}{
		{
			name:     "anonymous",
			cfg:      ClickHouseConfig{Endpoint: "localhost:9000", Database: "default"},
			expected: "clickhouse://localhost:9000/default",
		},
		{
			name:     "credentials",
			cfg:      ClickHouseConfig{Endpoint: "ch:9000", Database: "solana", Username: "writer", Password: "s3cret"},
			expected: "clickhouse://writer:s3cret@ch:9000/solana",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.cfg.DSN())
		})
	}
}
