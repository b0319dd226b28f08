// Package pipeline runs collection, mismatch detection, adjustment and the
// benchmark refresh as one reported run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/services/collector"
	"github.com/bobmcallan/fnoscreen/internal/services/reconcile"
)

// ErrRunInProgress is returned when a run is requested while another is going.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Run modes recorded on reports.
const (
	ModeAll = "all"
	ModeOne = "one"
)

// Options parameterise runs: symbol selection and the date boundaries.
type Options struct {
	StartDate       time.Time
	Symbols         []string // fixed universe; empty reads the primary source listing
	UniverseIndex   string
	BenchmarkSymbol string
	BenchmarkName   string
}

// OptionsFrom extracts run options from the application config.
func OptionsFrom(c *common.Config) Options {
	return Options{
		StartDate:       c.Pipeline.GetStartDate(),
		Symbols:         c.Universe.Symbols,
		UniverseIndex:   c.Universe.Index,
		BenchmarkSymbol: c.Clients.Yahoo.BenchmarkSymbol,
		BenchmarkName:   c.Clients.Yahoo.BenchmarkName,
	}
}

// Service implements PipelineService
type Service struct {
	storage   interfaces.StorageManager
	primary   interfaces.PrimarySource
	secondary interfaces.SecondarySource
	collector *collector.Collector
	detector  *reconcile.Detector
	adjuster  *reconcile.Adjuster
	logger    *common.Logger
	clock     common.Clock
	options   Options

	running   sync.Mutex
	listeners []func()
}

var _ interfaces.PipelineService = (*Service)(nil)

// NewService wires the run stages over one storage backend.
func NewService(
	storage interfaces.StorageManager,
	primary interfaces.PrimarySource,
	secondary interfaces.SecondarySource,
	col *collector.Collector,
	detector *reconcile.Detector,
	adjuster *reconcile.Adjuster,
	logger *common.Logger,
	clock common.Clock,
	options Options,
) *Service {
	return &Service{
		storage:   storage,
		primary:   primary,
		secondary: secondary,
		collector: col,
		detector:  detector,
		adjuster:  adjuster,
		logger:    logger,
		clock:     clock,
		options:   options,
	}
}

// OnRunComplete registers fn to be called after every run that wrote data.
func (s *Service) OnRunComplete(fn func()) {
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify() {
	for _, fn := range s.listeners {
		fn()
	}
}

// CollectAll resolves the universe, collects it, reconciles mismatches against the
// secondary source and refreshes the benchmark index.
func (s *Service) CollectAll(ctx context.Context) (*models.RunReport, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	report := s.newReport(ModeAll)
	log := s.logger.With().Str("run_id", report.RunID).Logger()

	symbols, err := s.resolveUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve universe: %w", err)
	}
	report.Universe = len(symbols)
	log.Info().Int("symbols", len(symbols)).Str("from", s.options.StartDate.Format(common.DateLayout)).Msg("Pipeline run started")

	to := models.TradingDate(s.clock.Now())
	report.Collect = s.collector.Collect(ctx, symbols, s.options.StartDate, to)
	defer s.notify()

	flagged, err := s.detector.Detect(ctx)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("mismatch detection skipped: %v", err))
		log.Warn().Err(err).Msg("Mismatch detection failed, skipping adjustment")
	} else {
		report.Flagged = sortedMismatches(flagged)
		report.Adjust = s.adjuster.Adjust(ctx, flagged, s.options.StartDate)
	}

	n, err := s.refreshBenchmark(ctx)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("benchmark refresh failed: %v", err))
		log.Warn().Err(err).Str("index", s.options.BenchmarkName).Msg("Benchmark refresh failed")
	}
	report.Benchmark = n

	report.FinishedAt = s.clock.Now()
	ev := log.Info().
		Int("succeeded", len(report.Collect.Succeeded)).
		Int("failed", len(report.Collect.Failed)).
		Int("flagged", len(report.Flagged)).
		Int("benchmark_bars", report.Benchmark)
	if report.Adjust != nil {
		ev = ev.Int("adjusted", len(report.Adjust.Adjusted))
	}
	ev.Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).Msg("Pipeline run complete")

	return report, nil
}

// CollectOne collects a single symbol. It runs no mismatch scan.
func (s *Service) CollectOne(ctx context.Context, symbol string) (*models.RunReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, common.NewInvalidParameter("symbol is required")
	}
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	report := s.newReport(ModeOne)
	report.Universe = 1

	to := models.TradingDate(s.clock.Now())
	report.Collect = s.collector.Collect(ctx, []string{symbol}, s.options.StartDate, to)
	report.FinishedAt = s.clock.Now()
	s.notify()

	s.logger.Info().
		Str("run_id", report.RunID).
		Str("symbol", symbol).
		Int("records", report.Collect.Records).
		Bool("failed", len(report.Collect.Failed) > 0).
		Msg("Single symbol collection complete")

	return report, nil
}

// Stats summarises stored data.
func (s *Service) Stats(ctx context.Context) (*models.StoreStats, error) {
	return s.storage.OHLCVStore().Stats(ctx)
}

func (s *Service) newReport(mode string) *models.RunReport {
	return &models.RunReport{
		RunID:     uuid.New().String(),
		Mode:      mode,
		StartedAt: s.clock.Now(),
	}
}

// resolveUniverse returns the configured symbols, or the primary source listing
// (stored to the stock table) when none are configured.
func (s *Service) resolveUniverse(ctx context.Context) ([]string, error) {
	if len(s.options.Symbols) > 0 {
		return dedupe(s.options.Symbols), nil
	}

	stocks, err := s.primary.FetchUniverse(ctx, s.options.UniverseIndex)
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 {
		return nil, fmt.Errorf("index %q listed no symbols", s.options.UniverseIndex)
	}

	now := s.clock.Now()
	symbols := make([]string, 0, len(stocks))
	for i := range stocks {
		stocks[i].LastUpdated = now
		symbols = append(symbols, stocks[i].Symbol)
	}
	if _, err := s.storage.StockStore().UpsertStocks(ctx, stocks); err != nil {
		return nil, fmt.Errorf("failed to store universe: %w", err)
	}
	return dedupe(symbols), nil
}

// refreshBenchmark stores the benchmark index from the start date onwards.
func (s *Service) refreshBenchmark(ctx context.Context) (int, error) {
	if s.options.BenchmarkSymbol == "" || s.options.BenchmarkName == "" {
		return 0, nil
	}
	bars, err := s.secondary.FetchIndex(ctx, s.options.BenchmarkSymbol, s.options.BenchmarkName, s.options.StartDate)
	if err != nil {
		return 0, err
	}
	return s.storage.IndexStore().UpsertIndexBars(ctx, s.options.BenchmarkName, bars)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func sortedMismatches(flagged models.FlaggedSet) []models.Mismatch {
	out := make([]models.Mismatch, 0, len(flagged))
	for _, m := range flagged {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
