// Package reconcile finds prevClose discontinuities left by corporate actions and
// repairs them from the adjusted secondary source.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// DefaultTolerance is the absolute price difference tolerated between a record's
// prevClose and the previous record's close.
const DefaultTolerance = 0.05

// Detector flags symbols whose stored series has a prevClose discontinuity.
type Detector struct {
	store     interfaces.OHLCVStore
	logger    *common.Logger
	tolerance float64
}

// NewDetector creates a Detector. A negative tolerance uses DefaultTolerance.
func NewDetector(store interfaces.OHLCVStore, logger *common.Logger, tolerance float64) *Detector {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return &Detector{store: store, logger: logger, tolerance: tolerance}
}

// Detect reads every stored series in one query and returns the flagged set.
func (d *Detector) Detect(ctx context.Context) (models.FlaggedSet, error) {
	all, err := d.store.GetAllSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read series for mismatch scan: %w", err)
	}

	flagged := DetectSeries(all, d.tolerance)

	symbols := flagged.Symbols()
	sort.Strings(symbols)
	for _, s := range symbols {
		m := flagged[s]
		d.logger.Info().
			Str("symbol", s).
			Str("date", m.Date.Format(common.DateLayout)).
			Float64("prev_close", m.PrevClose).
			Float64("prior_close", m.PriorClose).
			Int("discrepancies", m.Discrepancies).
			Msg("Mismatch detected")
	}
	d.logger.Info().Int("symbols", len(all)).Int("flagged", len(flagged)).Msg("Mismatch scan complete")

	return flagged, nil
}

// DetectSeries flags a symbol when |prevClose[i] - close[i-1]| > tolerance for any i >= 1.
// Series are sorted by date first; the input is not modified.
func DetectSeries(series map[string][]models.OHLCVRecord, tolerance float64) models.FlaggedSet {
	flagged := make(models.FlaggedSet)
	// prices are 2dp decimals; float differences would flag one-tick gaps only at some price levels
	tol := decimal.NewFromFloat(tolerance)

	for symbol, records := range series {
		if len(records) < 2 {
			continue
		}

		ordered := make([]models.OHLCVRecord, len(records))
		copy(ordered, records)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

		var first *models.Mismatch
		count := 0
		for i := 1; i < len(ordered); i++ {
			if !ordered[i].PrevClose.Sub(ordered[i-1].Close).Abs().GreaterThan(tol) {
				continue
			}
			count++
			if first == nil {
				first = &models.Mismatch{
					Symbol:     symbol,
					Date:       ordered[i].Date,
					PrevClose:  ordered[i].PrevClose.InexactFloat64(),
					PriorClose: ordered[i-1].Close.InexactFloat64(),
				}
			}
		}

		if first != nil {
			first.Discrepancies = count
			flagged[symbol] = *first
		}
	}

	return flagged
}
