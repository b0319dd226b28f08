// Package surrealdb implements storage on a SurrealDB server.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
)

const (
	tableOHLCV  = "daily_ohlcv"
	tableStocks = "stocks"
	tableIndex  = "index_ohlcv"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	ohlcvStore *OHLCVStore
	stockStore *StockStore
	indexStore *IndexStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManager(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// newManager defines the tables on an already selected database.
func newManager(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	// SurrealDB v3 errors on querying non-existent tables
	for _, table := range []string{tableOHLCV, tableStocks, tableIndex} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	return &Manager{
		db:         db,
		logger:     logger,
		ohlcvStore: NewOHLCVStore(db, logger),
		stockStore: NewStockStore(db, logger),
		indexStore: NewIndexStore(db, logger),
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
	return "surrealdb"
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
