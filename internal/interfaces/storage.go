// Package interfaces defines service contracts for fnoscreen
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// StorageManager coordinates the stores of one backend
type StorageManager interface {
	OHLCVStore() OHLCVStore
	StockStore() StockStore
	IndexStore() IndexStore

	// Backend names the storage engine ("sqlite", "postgres", "surrealdb").
	Backend() string

	// Lifecycle
	Close() error
}

// OHLCVStore persists daily bars keyed by (symbol, date).
type OHLCVStore interface {
	// UpsertRecords writes all records of one symbol atomically. A row matching an
	// existing key is fully replaced. On error no row of the batch is written.
	UpsertRecords(ctx context.Context, symbol string, records []models.OHLCVRecord) (int, error)

	// PatchAdjusted overwrites close and volume on existing rows only and returns
	// the number of rows updated. Dates with no stored row are ignored.
	PatchAdjusted(ctx context.Context, symbol string, bars []models.AdjustedBar) (int, error)

	// GetSeries returns a symbol's records ordered by date ascending.
	GetSeries(ctx context.Context, symbol string) ([]models.OHLCVRecord, error)

	// GetAllSeries returns every symbol's records, each ordered by date ascending,
	// read in a single query.
	GetAllSeries(ctx context.Context) (map[string][]models.OHLCVRecord, error)

	// Symbols returns the distinct stored symbols in ascending order.
	Symbols(ctx context.Context) ([]string, error)

	// Stats returns counts and the covered date range.
	Stats(ctx context.Context) (*models.StoreStats, error)
}

// StockStore persists the symbol universe.
type StockStore interface {
	UpsertStocks(ctx context.Context, stocks []models.Stock) (int, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	GetStock(ctx context.Context, symbol string) (*models.Stock, error)
}

// IndexStore persists benchmark index bars keyed by (index, date).
type IndexStore interface {
	UpsertIndexBars(ctx context.Context, index string, bars []models.IndexBar) (int, error)
	GetIndexSeries(ctx context.Context, index string, from time.Time) ([]models.IndexBar, error)
}
