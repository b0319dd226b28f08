package gormdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const upsertBatchSize = 200

// OHLCVStore implements interfaces.OHLCVStore on daily_ohlcv.
type OHLCVStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// UpsertRecords replaces every (symbol, date) row of the batch in one transaction.
func (s *OHLCVStore) UpsertRecords(ctx context.Context, symbol string, records []models.OHLCVRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]ohlcvRow, 0, len(records))
	for _, r := range records {
		if r.Symbol != symbol {
			return 0, fmt.Errorf("record for %s in %s batch", r.Symbol, symbol)
		}
		rows = append(rows, toOHLCVRow(r))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			UpdateAll: true,
		}).CreateInBatches(&rows, upsertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", symbol, err)
	}
	return len(rows), nil
}

// PatchAdjusted overwrites close and volume on rows that already exist.
func (s *OHLCVStore) PatchAdjusted(ctx context.Context, symbol string, bars []models.AdjustedBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	patched := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		patched = 0
		for _, b := range bars {
			res := tx.Model(&ohlcvRow{}).
				Where("symbol = ? AND date = ?", symbol, models.TradingDate(b.Date)).
				Updates(map[string]interface{}{
					"close":  b.Close,
					"volume": b.Volume,
				})
			if res.Error != nil {
				return res.Error
			}
			patched += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to patch %s: %w", symbol, err)
	}
	s.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Int("patched", patched).Msg("Adjusted bars patched")
	return patched, nil
}

// GetSeries returns a symbol's records ordered by date.
func (s *OHLCVStore) GetSeries(ctx context.Context, symbol string) ([]models.OHLCVRecord, error) {
	var rows []ohlcvRow
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get series %s: %w", symbol, err)
	}
	out := make([]models.OHLCVRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetAllSeries reads the whole table in one query.
func (s *OHLCVStore) GetAllSeries(ctx context.Context) (map[string][]models.OHLCVRecord, error) {
	var rows []ohlcvRow
	if err := s.db.WithContext(ctx).Order("symbol").Order("date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get all series: %w", err)
	}
	out := make(map[string][]models.OHLCVRecord)
	for _, r := range rows {
		out[r.Symbol] = append(out[r.Symbol], r.toModel())
	}
	return out, nil
}

// Symbols returns the distinct stored symbols.
func (s *OHLCVStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := s.db.WithContext(ctx).Model(&ohlcvRow{}).Distinct("symbol").Order("symbol").Pluck("symbol", &symbols).Error; err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return symbols, nil
}

// Stats returns counts and the covered date range.
func (s *OHLCVStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	db := s.db.WithContext(ctx)
	stats := &models.StoreStats{}

	if err := db.Model(&ohlcvRow{}).Count(&stats.DataPoints).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	if stats.DataPoints == 0 {
		return stats, nil
	}

	var symbols int64
	if err := db.Model(&ohlcvRow{}).Distinct("symbol").Count(&symbols).Error; err != nil {
		return nil, fmt.Errorf("failed to count symbols: %w", err)
	}
	stats.SymbolCount = int(symbols)

	// aggregate MIN/MAX lose the column type on sqlite, so read the boundary rows instead
	var first, last ohlcvRow
	if err := db.Order("date").Take(&first).Error; err != nil {
		return nil, fmt.Errorf("failed to read first date: %w", err)
	}
	if err := db.Order("date DESC").Take(&last).Error; err != nil {
		return nil, fmt.Errorf("failed to read last date: %w", err)
	}
	stats.FirstDate = models.TradingDate(first.Date.UTC())
	stats.LastDate = models.TradingDate(last.Date.UTC())

	var positive int64
	if err := db.Model(&ohlcvRow{}).Where("date = ? AND close > prev_close", stats.LastDate).Count(&positive).Error; err != nil {
		return nil, fmt.Errorf("failed to count advancers: %w", err)
	}
	stats.PositiveCount = int(positive)

	var stock stockRow
	err := db.Order("last_updated DESC").Take(&stock).Error
	switch {
	case err == nil:
		stats.LastUpdated = stock.LastUpdated.UTC()
	case errors.Is(err, gorm.ErrRecordNotFound):
		stats.LastUpdated = stats.LastDate
	default:
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}

	return stats, nil
}

// StockStore implements interfaces.StockStore on stocks.
type StockStore struct {
	db *gorm.DB
}

func (s *StockStore) UpsertStocks(ctx context.Context, stocks []models.Stock) (int, error) {
	if len(stocks) == 0 {
		return 0, nil
	}
	rows := make([]stockRow, len(stocks))
	for i, st := range stocks {
		rows[i] = stockRow{Symbol: st.Symbol, CompanyName: st.CompanyName, LotSize: st.LotSize, LastUpdated: st.LastUpdated.UTC()}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert stocks: %w", err)
	}
	return len(rows), nil
}

func (s *StockStore) ListStocks(ctx context.Context) ([]models.Stock, error) {
	var rows []stockRow
	if err := s.db.WithContext(ctx).Order("symbol").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	out := make([]models.Stock, len(rows))
	for i, r := range rows {
		out[i] = models.Stock{Symbol: r.Symbol, CompanyName: r.CompanyName, LotSize: r.LotSize, LastUpdated: r.LastUpdated.UTC()}
	}
	return out, nil
}

func (s *StockStore) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	var r stockRow
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stock %s not found", symbol)
		}
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}
	return &models.Stock{Symbol: r.Symbol, CompanyName: r.CompanyName, LotSize: r.LotSize, LastUpdated: r.LastUpdated.UTC()}, nil
}

// IndexStore implements interfaces.IndexStore on index_ohlcv.
type IndexStore struct {
	db *gorm.DB
}

func (s *IndexStore) UpsertIndexBars(ctx context.Context, index string, bars []models.IndexBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	rows := make([]indexRow, len(bars))
	for i, b := range bars {
		rows[i] = indexRow{IndexName: index, Date: models.TradingDate(b.Date), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index_name"}, {Name: "date"}},
		UpdateAll: true,
	}).CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert index %s: %w", index, err)
	}
	return len(rows), nil
}

func (s *IndexStore) GetIndexSeries(ctx context.Context, index string, from time.Time) ([]models.IndexBar, error) {
	var rows []indexRow
	err := s.db.WithContext(ctx).
		Where("index_name = ? AND date >= ?", index, models.TradingDate(from)).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", index, err)
	}
	out := make([]models.IndexBar, len(rows))
	for i, r := range rows {
		out[i] = models.IndexBar{Index: r.IndexName, Date: models.TradingDate(r.Date.UTC()), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
	}
	return out, nil
}
