package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// StockStore implements interfaces.StockStore on the stocks table.
type StockStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewStockStore creates a new StockStore.
func NewStockStore(db *surrealdb.DB, logger *common.Logger) *StockStore {
	return &StockStore{db: db, logger: logger}
}

func (s *StockStore) UpsertStocks(ctx context.Context, stocks []models.Stock) (int, error) {
	for _, st := range stocks {
		sql := "UPSERT $rid CONTENT $stock"
		vars := map[string]any{
			"rid": surrealmodels.NewRecordID(tableStocks, st.Symbol),
			"stock": stockDoc{
				Symbol:      st.Symbol,
				CompanyName: st.CompanyName,
				LotSize:     st.LotSize,
				LastUpdated: st.LastUpdated.UTC(),
			},
		}
		if _, err := surrealdb.Query[[]stockDoc](ctx, s.db, sql, vars); err != nil {
			return 0, fmt.Errorf("failed to upsert stock %s: %w", st.Symbol, err)
		}
	}
	return len(stocks), nil
}

func (s *StockStore) ListStocks(ctx context.Context) ([]models.Stock, error) {
	docs, err := queryDocs[stockDoc](ctx, s.db, "SELECT * FROM stocks ORDER BY symbol ASC", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	out := make([]models.Stock, len(docs))
	for i, d := range docs {
		out[i] = models.Stock{Symbol: d.Symbol, CompanyName: d.CompanyName, LotSize: d.LotSize, LastUpdated: d.LastUpdated.UTC()}
	}
	return out, nil
}

func (s *StockStore) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	d, err := surrealdb.Select[stockDoc](ctx, s.db, surrealmodels.NewRecordID(tableStocks, symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}
	if d == nil || d.Symbol == "" {
		return nil, fmt.Errorf("stock %s not found", symbol)
	}
	return &models.Stock{Symbol: d.Symbol, CompanyName: d.CompanyName, LotSize: d.LotSize, LastUpdated: d.LastUpdated.UTC()}, nil
}

// IndexStore implements interfaces.IndexStore on the index_ohlcv table.
type IndexStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewIndexStore creates a new IndexStore.
func NewIndexStore(db *surrealdb.DB, logger *common.Logger) *IndexStore {
	return &IndexStore{db: db, logger: logger}
}

func (s *IndexStore) UpsertIndexBars(ctx context.Context, index string, bars []models.IndexBar) (int, error) {
	for _, b := range bars {
		date := models.TradingDate(b.Date)
		sql := "UPSERT $rid CONTENT $bar"
		vars := map[string]any{
			"rid": surrealmodels.NewRecordID(tableIndex, recordID(index, date)),
			"bar": indexDoc{
				Index: index,
				Date:  date.Format(common.DateLayout),
				Open:  fromDecimal(b.Open),
				High:  fromDecimal(b.High),
				Low:   fromDecimal(b.Low),
				Close: fromDecimal(b.Close),
			},
		}
		if _, err := surrealdb.Query[[]indexDoc](ctx, s.db, sql, vars); err != nil {
			return 0, fmt.Errorf("failed to upsert index %s: %w", index, err)
		}
	}
	return len(bars), nil
}

func (s *IndexStore) GetIndexSeries(ctx context.Context, index string, from time.Time) ([]models.IndexBar, error) {
	sql := "SELECT * FROM index_ohlcv WHERE index_name = $index AND date >= $from ORDER BY date ASC"
	vars := map[string]any{"index": index, "from": models.TradingDate(from).Format(common.DateLayout)}
	docs, err := queryDocs[indexDoc](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", index, err)
	}
	out := make([]models.IndexBar, len(docs))
	for i, d := range docs {
		out[i] = models.IndexBar{
			Index: d.Index,
			Date:  parseDate(d.Date),
			Open:  toDecimal(d.Open),
			High:  toDecimal(d.High),
			Low:   toDecimal(d.Low),
			Close: toDecimal(d.Close),
		}
	}
	return out, nil
}

// Compile-time checks
var (
	_ interfaces.StockStore = (*StockStore)(nil)
	_ interfaces.IndexStore = (*IndexStore)(nil)
)
