// Package market provides the read-side stock queries
package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/services/snapshot"
)

const defaultHistoryDays = 30

// Service implements MarketService
type Service struct {
	storage interfaces.StorageManager
	loader  *snapshot.Loader
	logger  *common.Logger
}

var _ interfaces.MarketService = (*Service)(nil)

// NewService creates a new market service
func NewService(storage interfaces.StorageManager, loader *snapshot.Loader, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		loader:  loader,
		logger:  logger,
	}
}

// GetStock returns stock info, metrics and the last days sessions, newest first.
func (s *Service) GetStock(ctx context.Context, symbol string, days int) (*models.StockDetail, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if days <= 0 {
		days = defaultHistoryDays
	}

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	records, ok := snap.Series[symbol]
	if !ok || len(records) == 0 {
		return nil, common.NewStockNotFound(symbol)
	}

	stock, ok := snap.Stocks[symbol]
	if !ok {
		stock = models.Stock{Symbol: symbol}
	}

	if len(records) > days {
		records = records[len(records)-days:]
	}
	history := make([]models.HistoryPoint, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		history = append(history, models.HistoryPoint{
			Date:           r.Date,
			Open:           r.Open.InexactFloat64(),
			High:           r.High.InexactFloat64(),
			Low:            r.Low.InexactFloat64(),
			Close:          r.Close.InexactFloat64(),
			PrevClose:      r.PrevClose.InexactFloat64(),
			ChangePct:      r.ChangePct(),
			Volume:         r.Volume,
			DeliveryVolume: r.DeliveryVolume,
			DeliveryPct:    r.DeliveryPct.InexactFloat64(),
		})
	}

	return &models.StockDetail{
		Stock:   stock,
		Metrics: snap.Metrics[symbol],
		History: history,
	}, nil
}

// Stats summarises stored data.
func (s *Service) Stats(ctx context.Context) (*models.StoreStats, error) {
	start := time.Now()
	stats, err := s.storage.OHLCVStore().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	s.logger.Debug().Int("symbols", stats.SymbolCount).Dur("elapsed", time.Since(start)).Msg("Stats read")
	return stats, nil
}

// Invalidate drops the cached universe, typically after a pipeline run.
func (s *Service) Invalidate() {
	s.loader.Invalidate()
}
