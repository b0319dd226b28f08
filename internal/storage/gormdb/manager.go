// Package gormdb implements storage on SQL databases through gorm: an embedded
// SQLite file by default, or PostgreSQL.
package gormdb

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
)

// Manager implements interfaces.StorageManager on a gorm connection.
type Manager struct {
	db      *gorm.DB
	logger  *common.Logger
	backend string

	ohlcvStore *OHLCVStore
	stockStore *StockStore
	indexStore *IndexStore
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager opens the configured SQL backend and migrates the schema.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	var dialector gorm.Dialector

	switch config.Storage.Backend {
	case "postgres":
		if config.Storage.DSN == "" {
			return nil, fmt.Errorf("storage.dsn is required for the postgres backend")
		}
		dialector = postgres.Open(config.Storage.DSN)
	case "sqlite", "":
		path := config.Storage.Path
		if path == "" {
			path = "data/stocks.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dialector = sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	default:
		return nil, fmt.Errorf("gormdb: unsupported backend %q", config.Storage.Backend)
	}

	m, err := Open(logger, dialector, config.Storage.Backend)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("backend", m.backend).
		Str("path", config.Storage.Path).
		Msg("SQL storage manager initialized")

	return m, nil
}

// Open wraps an already chosen dialector.
func Open(logger *common.Logger, dialector gorm.Dialector, backend string) (*Manager, error) {
	if backend == "" {
		backend = "sqlite"
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}

	if backend == "sqlite" {
		// one writer at a time; concurrent per-symbol upserts queue on the pool
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ohlcvRow{}, &stockRow{}, &indexRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Manager{
		db:         db,
		logger:     logger,
		backend:    backend,
		ohlcvStore: &OHLCVStore{db: db, logger: logger},
		stockStore: &StockStore{db: db},
		indexStore: &IndexStore{db: db},
	}, nil
}

func (m *Manager) OHLCVStore() interfaces.OHLCVStore {
	return m.ohlcvStore
}

func (m *Manager) StockStore() interfaces.StockStore {
	return m.stockStore
}

func (m *Manager) IndexStore() interfaces.IndexStore {
	return m.indexStore
}

func (m *Manager) Backend() string {
	return m.backend
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
