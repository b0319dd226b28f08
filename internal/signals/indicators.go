// Package signals provides technical indicator calculations
package signals

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// SessionsPerYear is the trailing window for 52-week figures and the sparkline.
const SessionsPerYear = 252

// Closes extracts closing prices from an ascending series.
func Closes(records []models.OHLCVRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Close.InexactFloat64()
	}
	return out
}

// SMA calculates the Simple Moving Average of the last period closes.
// ok is false when fewer than period closes exist.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// ATR calculates Average True Range over the last period sessions.
// It needs period+1 records so every session has a previous close.
func ATR(records []models.OHLCVRecord, period int) (float64, bool) {
	if period <= 0 || len(records) < period+1 {
		return 0, false
	}

	trSum := 0.0
	for i := len(records) - period; i < len(records); i++ {
		trSum += TrueRange(records[i], records[i-1].Close.InexactFloat64())
	}
	return trSum / float64(period), true
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(r models.OHLCVRecord, prevClose float64) float64 {
	high := r.High.InexactFloat64()
	low := r.Low.InexactFloat64()

	tr1 := high - low
	tr2 := math.Abs(high - prevClose)
	tr3 := math.Abs(low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// High52Week returns the highest close over the trailing 252 sessions, or all of them if fewer.
func High52Week(closes []float64) (float64, bool) {
	if len(closes) == 0 {
		return 0, false
	}
	start := 0
	if len(closes) > SessionsPerYear {
		start = len(closes) - SessionsPerYear
	}

	high := closes[start]
	for _, c := range closes[start+1:] {
		if c > high {
			high = c
		}
	}
	return high, true
}

// ReturnSince is the percent change from the last close dated on or before boundary
// to the latest close. Nil when no record is old enough.
func ReturnSince(records []models.OHLCVRecord, boundary time.Time) *float64 {
	if len(records) == 0 {
		return nil
	}

	// first index with Date > boundary
	i := sort.Search(len(records), func(i int) bool {
		return records[i].Date.After(boundary)
	})
	if i == 0 {
		return nil
	}

	base := records[i-1].Close.InexactFloat64()
	if base == 0 {
		return nil
	}
	latest := records[len(records)-1].Close.InexactFloat64()
	v := (latest - base) / base * 100
	return &v
}

// YearStart is Jan 1 of the session's year.
func YearStart(latest time.Time) time.Time {
	return time.Date(latest.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBack steps back n calendar months, clamping the day to the target month's length
// (Mar 31 minus one month is Feb 28, not Mar 3).
func MonthsBack(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Sparkline samples the trailing 252 closes at round(i*(n-1)/(points-1)) for
// i in [0, points). The result always has points values: shorter series repeat
// samples, a single close is repeated, and no closes gives an empty slice.
func Sparkline(closes []float64, points int) []float64 {
	if len(closes) > SessionsPerYear {
		closes = closes[len(closes)-SessionsPerYear:]
	}
	n := len(closes)
	if n == 0 || points < 1 {
		return []float64{}
	}

	out := make([]float64, points)
	if points == 1 {
		out[0] = closes[n-1]
		return out
	}
	for i := 0; i < points; i++ {
		idx := int(math.Round(float64(i*(n-1)) / float64(points-1)))
		out[i] = closes[idx]
	}
	return out
}

// CloseLocation is where the close sits in the session range: 0 at the low, 1 at the high.
// A flat session is 0.5.
func CloseLocation(r models.OHLCVRecord) float64 {
	high := r.High.InexactFloat64()
	low := r.Low.InexactFloat64()
	if high == low {
		return 0.5
	}
	return (r.Close.InexactFloat64() - low) / (high - low)
}

// CandlePct is the body of the session candle as a percent of the open.
func CandlePct(r models.OHLCVRecord) *float64 {
	open := r.Open.InexactFloat64()
	if open == 0 {
		return nil
	}
	v := (r.Close.InexactFloat64() - open) / open * 100
	return &v
}

// PercentileRanks maps each key to the share of values less than or equal to its own, times 100.
// Equal values get equal ranks and the rank never decreases as the value grows.
func PercentileRanks(values map[string]float64) map[string]float64 {
	if len(values) == 0 {
		return map[string]float64{}
	}

	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		sorted = append(sorted, v)
	}
	sort.Float64s(sorted)

	ranks := make(map[string]float64, len(values))
	for k, v := range values {
		ranks[k] = stat.CDF(v, stat.Empirical, sorted, nil) * 100
	}
	return ranks
}
