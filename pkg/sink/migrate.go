package sink

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var migrations embed.FS

// Migrator applies the embedded ClickHouse schema migrations.
type Migrator struct {
	logger *zap.SugaredLogger
	dsn    string
}

// NewMigrator takes a migrate-style dsn, see ClickHouseConfig.DSN.
func NewMigrator(dsn string) *Migrator {
	return &Migrator{logger: slog.Get(), dsn: dsn}
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	mig, err := m.newMigrate()
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer mig.Close()

	m.logger.Info("Running migrations...")
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, _, _ := mig.Version()
	m.logger.Infow("Migrations completed", "version", version)
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down() error {
	mig, err := m.newMigrate()
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer mig.Close()

	m.logger.Info("Rolling back last migration...")
	if err := mig.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	return nil
}

// Status returns the current migration version.
func (m *Migrator) Status() (uint, bool, error) {
	mig, err := m.newMigrate()
	if err != nil {
		return 0, false, err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer mig.Close()

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("getting migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}
	mig, err := migrate.NewWithSourceInstance("iofs", source, withMultiStatement(m.dsn))
	if err != nil {
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return mig, nil
}

func withMultiStatement(dsn string) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "x-multi-statement=true"
}
