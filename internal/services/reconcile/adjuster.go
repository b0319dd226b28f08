package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// Adjuster merges adjusted close and volume from the secondary source into flagged series.
type Adjuster struct {
	source interfaces.SecondarySource
	store  interfaces.OHLCVStore
	logger *common.Logger
}

// NewAdjuster creates a new Adjuster.
func NewAdjuster(source interfaces.SecondarySource, store interfaces.OHLCVStore, logger *common.Logger) *Adjuster {
	return &Adjuster{source: source, store: store, logger: logger}
}

// Adjust processes flagged symbols one at a time in symbol order. Source failures mark
// a symbol unavailable; they are never returned as errors. Only a cancelled ctx stops the pass.
func (a *Adjuster) Adjust(ctx context.Context, flagged models.FlaggedSet, from time.Time) *models.AdjustSummary {
	summary := &models.AdjustSummary{PerSymbol: make(map[string]int)}

	symbols := flagged.Symbols()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			summary.Unavailable = append(summary.Unavailable, symbol)
			continue
		}

		ticker := a.source.SourceSymbol(symbol)
		bars, err := a.source.FetchAdjusted(ctx, symbol, from)
		if err != nil {
			a.logger.Warn().Str("symbol", symbol).Str("ticker", ticker).Err(err).Msg("Adjusted series unavailable")
			summary.Unavailable = append(summary.Unavailable, symbol)
			continue
		}
		if len(bars) == 0 {
			a.logger.Warn().Str("symbol", symbol).Str("ticker", ticker).Msg("Adjusted series empty")
			summary.Unavailable = append(summary.Unavailable, symbol)
			continue
		}

		patched, err := a.store.PatchAdjusted(ctx, symbol, bars)
		if err != nil {
			integrity := &common.DataIntegrityError{Symbol: symbol, Reason: "adjusted merge rolled back", Err: err}
			a.logger.Error().Str("symbol", symbol).Err(integrity).Msg("Failed to merge adjusted series")
			summary.Unresolved = append(summary.Unresolved, symbol)
			summary.Diagnostics = append(summary.Diagnostics, integrity.Error())
			continue
		}

		summary.PerSymbol[symbol] = patched
		summary.RowsPatched += patched

		if patched == 0 {
			m := flagged[symbol]
			integrity := &common.DataIntegrityError{Symbol: symbol, Date: m.Date, Reason: "mismatch unresolved after adjustment"}
			a.logger.Error().Str("symbol", symbol).Str("ticker", ticker).Err(integrity).Msg("No stored rows matched adjusted series")
			summary.Unresolved = append(summary.Unresolved, symbol)
			summary.Diagnostics = append(summary.Diagnostics, integrity.Error())
			continue
		}

		a.logger.Info().Str("symbol", symbol).Str("ticker", ticker).Int("rows", patched).Msg("Adjusted series merged")
		summary.Adjusted = append(summary.Adjusted, symbol)
	}

	a.logger.Info().
		Int("flagged", len(symbols)).
		Int("adjusted", len(summary.Adjusted)).
		Int("unavailable", len(summary.Unavailable)).
		Int("unresolved", len(summary.Unresolved)).
		Int("rows", summary.RowsPatched).
		Msg("Adjustment complete")

	return summary
}
