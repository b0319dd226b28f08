// Package signals provides metric computation
package signals

import (
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const defaultSparklinePoints = 50

// Computer derives metrics from stored daily history
type Computer struct {
	sparklinePoints int
}

// NewComputer creates a new metrics computer. Non-positive points use 50.
func NewComputer(sparklinePoints int) *Computer {
	if sparklinePoints <= 0 {
		sparklinePoints = defaultSparklinePoints
	}
	return &Computer{sparklinePoints: sparklinePoints}
}

// Compute calculates one symbol's metrics from its ascending series.
// RSRank needs the whole universe and is left nil; see ComputeUniverse.
func (c *Computer) Compute(records []models.OHLCVRecord) *models.DerivedMetrics {
	if len(records) == 0 {
		return nil
	}

	latest := records[len(records)-1]
	closes := Closes(records)
	current := closes[len(closes)-1]

	m := &models.DerivedMetrics{
		Symbol:    latest.Symbol,
		Date:      latest.Date,
		Close:     current,
		ChangePct: latest.ChangePct(),
		YTDPct:    ReturnSince(records, YearStart(latest.Date)),
		Pct1M:     ReturnSince(records, MonthsBack(latest.Date, 1)),
		Pct1Y:     ReturnSince(records, MonthsBack(latest.Date, 12)),
		Sparkline: Sparkline(closes, c.sparklinePoints),
	}

	m.SMA20, m.AboveSMA20 = smaWithPosition(closes, 20, current)
	m.SMA50, m.AboveSMA50 = smaWithPosition(closes, 50, current)
	m.SMA200, m.AboveSMA200 = smaWithPosition(closes, 200, current)

	if high, ok := High52Week(closes); ok && high > 0 {
		delta := (current - high) / high * 100
		m.High52W = &high
		m.Delta52WHigh = &delta
	}

	if atr, ok := ATR(records, 14); ok {
		m.ATR14 = &atr
	}

	return m
}

// ComputeUniverse computes metrics for every symbol and ranks the 1Y returns.
// Symbols without a 1Y return keep a nil RSRank.
func (c *Computer) ComputeUniverse(series map[string][]models.OHLCVRecord) map[string]*models.DerivedMetrics {
	out := make(map[string]*models.DerivedMetrics, len(series))
	returns := make(map[string]float64, len(series))

	for symbol, records := range series {
		m := c.Compute(records)
		if m == nil {
			continue
		}
		out[symbol] = m
		if m.Pct1Y != nil {
			returns[symbol] = *m.Pct1Y
		}
	}

	for symbol, rank := range PercentileRanks(returns) {
		r := rank
		out[symbol].RSRank = &r
	}

	return out
}

func smaWithPosition(closes []float64, period int, current float64) (*float64, *bool) {
	sma, ok := SMA(closes, period)
	if !ok {
		return nil, nil
	}
	above := current > sma
	return &sma, &above
}
