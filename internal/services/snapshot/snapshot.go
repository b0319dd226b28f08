// Package snapshot loads the reconciled universe and its derived metrics in one pass
// and serves it to the read-side services until it goes stale or is invalidated.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/signals"
)

// Snapshot is a read-only view of the store at LoadedAt.
type Snapshot struct {
	Series     map[string][]models.OHLCVRecord
	Metrics    map[string]*models.DerivedMetrics
	Stocks     map[string]models.Stock
	Benchmark  map[time.Time]float64 // benchmark session change percent, keyed by UTC trading date
	LatestDate time.Time
	LoadedAt   time.Time
}

// Symbols returns the symbols with stored history, sorted.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Series))
	for symbol := range s.Series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// CompanyName returns the listed name, or "" when the stock row is missing.
func (s *Snapshot) CompanyName(symbol string) string {
	return s.Stocks[symbol].CompanyName
}

// BenchmarkChange returns the benchmark's change on date; a missing session counts as 0.
func (s *Snapshot) BenchmarkChange(date time.Time) float64 {
	return s.Benchmark[models.TradingDate(date)]
}

// Loader builds and caches snapshots.
type Loader struct {
	storage   interfaces.StorageManager
	computer  *signals.Computer
	logger    *common.Logger
	clock     common.Clock
	benchmark string

	mu     sync.Mutex
	cached *Snapshot
}

// NewLoader creates a Loader. benchmark names the index series used for relative returns.
func NewLoader(storage interfaces.StorageManager, computer *signals.Computer, logger *common.Logger, benchmark string) *Loader {
	return &Loader{
		storage:   storage,
		computer:  computer,
		logger:    logger,
		clock:     common.NewRealClock(),
		benchmark: benchmark,
	}
}

// SetClock replaces the clock used for freshness checks.
func (l *Loader) SetClock(clock common.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Load returns the cached snapshot while fresh, else rebuilds it.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.cached != nil && common.IsFresh(l.cached.LoadedAt, now, common.FreshnessUniverse) {
		return l.cached, nil
	}

	snap, err := l.build(ctx, now)
	if err != nil {
		return nil, err
	}
	l.cached = snap
	return snap, nil
}

// Invalidate drops the cached snapshot so the next Load reads storage.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}

func (l *Loader) build(ctx context.Context, now time.Time) (*Snapshot, error) {
	start := time.Now()

	series, err := l.storage.OHLCVStore().GetAllSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}

	snap := &Snapshot{
		Series:    series,
		Metrics:   l.computer.ComputeUniverse(series),
		Stocks:    make(map[string]models.Stock),
		Benchmark: make(map[time.Time]float64),
		LoadedAt:  now,
	}

	for _, records := range series {
		if len(records) == 0 {
			continue
		}
		if d := records[len(records)-1].Date; d.After(snap.LatestDate) {
			snap.LatestDate = d
		}
	}

	stocks, err := l.storage.StockStore().ListStocks(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to load stock list, continuing without company names")
	}
	for _, st := range stocks {
		snap.Stocks[st.Symbol] = st
	}

	if l.benchmark != "" {
		bars, err := l.storage.IndexStore().GetIndexSeries(ctx, l.benchmark, time.Time{})
		if err != nil {
			l.logger.Warn().Str("index", l.benchmark).Err(err).Msg("Failed to load benchmark, relative returns use 0")
		}
		for i := 1; i < len(bars); i++ {
			prev := bars[i-1].Close.InexactFloat64()
			if prev == 0 {
				continue
			}
			snap.Benchmark[models.TradingDate(bars[i].Date)] = (bars[i].Close.InexactFloat64() - prev) / prev * 100
		}
	}

	l.logger.Debug().
		Int("symbols", len(series)).
		Str("latest", snap.LatestDate.Format(common.DateLayout)).
		Dur("elapsed", time.Since(start)).
		Msg("Universe snapshot loaded")

	return snap, nil
}
