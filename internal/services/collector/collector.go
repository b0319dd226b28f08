// Package collector pulls primary-source history for the symbol universe with a
// bounded worker pool and writes it to storage.
package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const sourceName = "nse"

// Config controls concurrency and retry behaviour.
type Config struct {
	Workers      int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	FetchTimeout time.Duration
}

// ConfigFrom reads the [pipeline] section.
func ConfigFrom(c *common.Config) Config {
	return Config{
		Workers:      c.Pipeline.Workers,
		MaxAttempts:  c.Pipeline.MaxAttempts,
		BackoffBase:  c.Pipeline.GetBackoffBase(),
		BackoffMax:   c.Pipeline.GetBackoffMax(),
		FetchTimeout: c.Pipeline.GetFetchTimeout(),
	}
}

// Collector fetches and stores primary-source records.
type Collector struct {
	source interfaces.PrimarySource
	store  interfaces.OHLCVStore
	logger *common.Logger
	clock  common.Clock
	config Config
}

// NewCollector creates a new Collector. A nil clock uses real time.
func NewCollector(source interfaces.PrimarySource, store interfaces.OHLCVStore, logger *common.Logger, clock common.Clock, config Config) *Collector {
	if clock == nil {
		clock = common.NewRealClock()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 60 * time.Second
	}
	return &Collector{
		source: source,
		store:  store,
		logger: logger,
		clock:  clock,
		config: config,
	}
}

type status int

const (
	statusSucceeded status = iota
	statusSkipped
	statusFailed
)

// outcome is one symbol's result.
type outcome struct {
	symbol     string
	status     status
	records    int
	rejected   int
	attempts   int
	err        error
	diagnostic string
}

// Collect fetches [from, to] for every symbol and upserts the results.
// The summary is always returned; per-symbol failures never abort the batch.
func (c *Collector) Collect(ctx context.Context, symbols []string, from, to time.Time) *models.CollectSummary {
	start := time.Now()
	summary := &models.CollectSummary{From: from, To: to}

	workers := c.config.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}

	jobs := make(chan string)
	results := make(chan outcome, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				results <- c.collectSafe(ctx, symbol, from, to)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	seen := make(map[string]bool, len(symbols))
	for o := range results {
		seen[o.symbol] = true
		summary.Records += o.records
		summary.Rejected += o.rejected
		switch o.status {
		case statusSucceeded:
			summary.Succeeded = append(summary.Succeeded, o.symbol)
		case statusSkipped:
			summary.Skipped = append(summary.Skipped, o.symbol)
		case statusFailed:
			summary.Failed = append(summary.Failed, models.SymbolFailure{
				Symbol:   o.symbol,
				Attempts: o.attempts,
				Error:    o.err.Error(),
			})
		}
		if o.diagnostic != "" {
			summary.Diagnostics = append(summary.Diagnostics, o.diagnostic)
		}
	}

	// symbols never dispatched because the caller cancelled
	for _, symbol := range symbols {
		if !seen[symbol] {
			summary.Failed = append(summary.Failed, models.SymbolFailure{Symbol: symbol, Error: "not collected: " + errorText(ctx.Err())})
		}
	}

	sort.Strings(summary.Succeeded)
	sort.Strings(summary.Skipped)
	sort.Strings(summary.Diagnostics)
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].Symbol < summary.Failed[j].Symbol })
	summary.Elapsed = time.Since(start)

	c.logger.Info().
		Int("symbols", len(symbols)).
		Int("succeeded", len(summary.Succeeded)).
		Int("skipped", len(summary.Skipped)).
		Int("failed", len(summary.Failed)).
		Int("records", summary.Records).
		Int("rejected", summary.Rejected).
		Dur("elapsed", summary.Elapsed).
		Msg("Collection complete")

	return summary
}

// collectSafe recovers a panicking symbol into a failed outcome so the worker keeps going.
func (c *Collector) collectSafe(ctx context.Context, symbol string, from, to time.Time) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("symbol", symbol).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in collector worker")
			o = outcome{symbol: symbol, status: statusFailed, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return c.collectSymbol(ctx, symbol, from, to)
}

func (c *Collector) collectSymbol(ctx context.Context, symbol string, from, to time.Time) outcome {
	records, rejected, attempts, err := c.fetchWithRetry(ctx, symbol, from, to)
	o := outcome{symbol: symbol, rejected: rejected, attempts: attempts}
	if err != nil {
		c.logger.Warn().Str("symbol", symbol).Int("attempts", attempts).Err(err).Msg("Symbol collection failed")
		o.status = statusFailed
		o.err = err
		return o
	}

	if len(records) == 0 {
		c.logger.Debug().Str("symbol", symbol).Int("rejected", rejected).Msg("No valid records, skipping")
		o.status = statusSkipped
		return o
	}

	n, err := c.store.UpsertRecords(ctx, symbol, records)
	if err != nil {
		integrity := &common.DataIntegrityError{Symbol: symbol, Reason: "upsert rolled back", Err: err}
		c.logger.Error().Str("symbol", symbol).Err(integrity).Msg("Failed to store records")
		o.status = statusFailed
		o.err = integrity
		o.diagnostic = integrity.Error()
		return o
	}

	c.logger.Debug().Str("symbol", symbol).Int("records", n).Int("rejected", rejected).Msg("Symbol collected")
	o.status = statusSucceeded
	o.records = n
	return o
}

// fetchWithRetry retries transient failures with exponential backoff on the collector clock.
func (c *Collector) fetchWithRetry(ctx context.Context, symbol string, from, to time.Time) ([]models.OHLCVRecord, int, int, error) {
	for attempt := 1; ; attempt++ {
		fctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
		records, rejected, err := c.source.FetchHistory(fctx, symbol, from, to)
		cancel()
		if err == nil {
			return records, rejected, attempt, nil
		}

		if ctx.Err() != nil {
			return nil, 0, attempt, ctx.Err()
		}

		if !common.IsTransient(err) {
			var pe *common.PermanentFetchError
			if errors.As(err, &pe) {
				return nil, 0, attempt, err
			}
			return nil, 0, attempt, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Attempts: attempt, Err: err}
		}

		if attempt >= c.config.MaxAttempts {
			return nil, 0, attempt, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Attempts: attempt, Err: err}
		}

		delay := c.backoff(attempt)
		c.logger.Warn().
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Transient fetch error, retrying")

		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return nil, 0, attempt, ctx.Err()
		}
	}
}

// backoff returns base * 2^(attempt-1), capped at BackoffMax.
func (c *Collector) backoff(attempt int) time.Duration {
	d := c.config.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.config.BackoffMax > 0 && d >= c.config.BackoffMax {
			return c.config.BackoffMax
		}
	}
	if c.config.BackoffMax > 0 && d > c.config.BackoffMax {
		return c.config.BackoffMax
	}
	return d
}

func errorText(err error) string {
	if err == nil {
		return "cancelled"
	}
	return err.Error()
}
