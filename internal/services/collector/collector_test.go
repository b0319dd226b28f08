package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// --- mocks ---

type fetchFunc func(symbol string, call int) ([]models.OHLCVRecord, int, error)

type mockSource struct {
	mu     sync.Mutex
	calls  map[string]int
	fetch  fetchFunc
	active atomic.Int32
	peak   atomic.Int32
}

func newMockSource(fetch fetchFunc) *mockSource {
	return &mockSource{calls: make(map[string]int), fetch: fetch}
}

func (m *mockSource) FetchHistory(_ context.Context, symbol string, _, _ time.Time) ([]models.OHLCVRecord, int, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[symbol]++
	call := m.calls[symbol]
	m.mu.Unlock()

	time.Sleep(time.Millisecond)
	return m.fetch(symbol, call)
}

func (m *mockSource) FetchUniverse(context.Context, string) ([]models.Stock, error) {
	return nil, nil
}

func (m *mockSource) callCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

type mockStore struct {
	mu     sync.Mutex
	rows   map[string]models.OHLCVRecord
	failOn map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[string]models.OHLCVRecord), failOn: make(map[string]bool)}
}

func (m *mockStore) UpsertRecords(_ context.Context, symbol string, records []models.OHLCVRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[symbol] {
		return 0, errors.New("disk full")
	}
	for _, r := range records {
		m.rows[r.Key()] = r
	}
	return len(records), nil
}

func (m *mockStore) PatchAdjusted(context.Context, string, []models.AdjustedBar) (int, error) {
	return 0, nil
}

func (m *mockStore) GetSeries(context.Context, string) ([]models.OHLCVRecord, error) {
	return nil, nil
}

func (m *mockStore) GetAllSeries(context.Context) (map[string][]models.OHLCVRecord, error) {
	return nil, nil
}

func (m *mockStore) Symbols(context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockStore) Stats(context.Context) (*models.StoreStats, error) {
	return &models.StoreStats{}, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- helpers ---

var (
	from = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
)

func records(symbol string, n int) []models.OHLCVRecord {
	out := make([]models.OHLCVRecord, n)
	for i := range out {
		out[i] = models.OHLCVRecord{
			Symbol: symbol,
			Date:   from.AddDate(0, 0, i+1),
			Series: models.SeriesEquity,
			Close:  decimal.NewFromInt(int64(100 + i)),
			Volume: 1000,
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Workers:      3,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
		FetchTimeout: time.Second,
	}
}

func transient(symbol string) error {
	return &common.TransientFetchError{Source: "nse", Symbol: symbol, Err: errors.New("HTTP 503")}
}

// --- tests ---

func TestCollect_Outcomes(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		switch symbol {
		case "SBIN":
			return records(symbol, 5), 1, nil
		case "EMPTY":
			return nil, 2, nil
		case "GONE":
			return nil, 0, &common.PermanentFetchError{Source: "nse", Symbol: symbol, Err: errors.New("HTTP 404")}
		}
		return records(symbol, 3), 0, nil
	})
	store := newMockStore()
	clock := common.NewFakeClock(from)
	c := NewCollector(source, store, common.NewSilentLogger(), clock, testConfig())

	summary := c.Collect(context.Background(), []string{"SBIN", "EMPTY", "GONE", "TCS"}, from, to)

	assert.Equal(t, []string{"SBIN", "TCS"}, summary.Succeeded)
	assert.Equal(t, []string{"EMPTY"}, summary.Skipped)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "GONE", summary.Failed[0].Symbol)
	assert.Equal(t, 1, summary.Failed[0].Attempts)
	assert.Equal(t, 8, summary.Records)
	assert.Equal(t, 3, summary.Rejected)
	assert.Equal(t, 1, source.callCount("GONE"), "permanent errors are not retried")
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 8, store.count())
}

func TestCollect_RetriesTransientWithBackoff(t *testing.T) {
	source := newMockSource(func(symbol string, call int) ([]models.OHLCVRecord, int, error) {
		if call < 3 {
			return nil, 0, transient(symbol)
		}
		return records(symbol, 2), 0, nil
	})
	clock := common.NewFakeClock(from)
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), clock, testConfig())

	summary := c.Collect(context.Background(), []string{"SBIN"}, from, to)

	assert.Equal(t, []string{"SBIN"}, summary.Succeeded)
	assert.Equal(t, 3, source.callCount("SBIN"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestCollect_RetriesExhausted(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		return nil, 0, transient(symbol)
	})
	clock := common.NewFakeClock(from)
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), clock, testConfig())

	summary := c.Collect(context.Background(), []string{"SBIN"}, from, to)

	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 3, summary.Failed[0].Attempts)
	assert.Contains(t, summary.Failed[0].Error, "after 3 attempts")
	assert.Equal(t, 3, source.callCount("SBIN"))
	assert.Len(t, clock.Sleeps(), 2)
}

func TestCollect_DeadlineIsTransient(t *testing.T) {
	source := newMockSource(func(symbol string, call int) ([]models.OHLCVRecord, int, error) {
		if call == 1 {
			return nil, 0, fmt.Errorf("read body: %w", context.DeadlineExceeded)
		}
		return records(symbol, 1), 0, nil
	})
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), common.NewFakeClock(from), testConfig())

	summary := c.Collect(context.Background(), []string{"SBIN"}, from, to)
	assert.Equal(t, []string{"SBIN"}, summary.Succeeded)
	assert.Equal(t, 2, source.callCount("SBIN"))
}

func TestCollect_StoreFailureIsIntegrityError(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		return records(symbol, 2), 0, nil
	})
	store := newMockStore()
	store.failOn["SBIN"] = true
	c := NewCollector(source, store, common.NewSilentLogger(), common.NewFakeClock(from), testConfig())

	summary := c.Collect(context.Background(), []string{"SBIN", "TCS"}, from, to)

	assert.Equal(t, []string{"TCS"}, summary.Succeeded)
	assert.Equal(t, []string{"SBIN"}, summary.FailedSymbols())
	require.Len(t, summary.Diagnostics, 1)
	assert.Contains(t, summary.Diagnostics[0], "data integrity: SBIN")
}

func TestCollect_Idempotent(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		return records(symbol, 4), 0, nil
	})
	store := newMockStore()
	c := NewCollector(source, store, common.NewSilentLogger(), common.NewFakeClock(from), testConfig())

	c.Collect(context.Background(), []string{"SBIN", "TCS"}, from, to)
	first := store.count()
	c.Collect(context.Background(), []string{"SBIN", "TCS"}, from, to)

	assert.Equal(t, 8, first)
	assert.Equal(t, first, store.count())
}

func TestCollect_RecoversPanics(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		if symbol == "BOOM" {
			panic("nil pointer in parser")
		}
		return records(symbol, 1), 0, nil
	})
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), common.NewFakeClock(from), testConfig())

	summary := c.Collect(context.Background(), []string{"BOOM", "SBIN", "TCS"}, from, to)

	assert.Equal(t, []string{"SBIN", "TCS"}, summary.Succeeded)
	require.Len(t, summary.Failed, 1)
	assert.Contains(t, summary.Failed[0].Error, "panic")
}

func TestCollect_BoundedWorkers(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		time.Sleep(5 * time.Millisecond)
		return records(symbol, 1), 0, nil
	})
	cfg := testConfig()
	cfg.Workers = 2
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), common.NewFakeClock(from), cfg)

	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
	}
	summary := c.Collect(context.Background(), symbols, from, to)

	assert.Len(t, summary.Succeeded, 10)
	assert.LessOrEqual(t, source.peak.Load(), int32(2))
}

func TestCollect_CancelledContext(t *testing.T) {
	source := newMockSource(func(symbol string, _ int) ([]models.OHLCVRecord, int, error) {
		return records(symbol, 1), 0, nil
	})
	c := NewCollector(source, newMockStore(), common.NewSilentLogger(), common.NewFakeClock(from), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := c.Collect(ctx, []string{"SBIN", "TCS"}, from, to)

	assert.Equal(t, 2, len(summary.Succeeded)+len(summary.Failed))
}

func TestBackoff(t *testing.T) {
	c := NewCollector(nil, nil, common.NewSilentLogger(), nil, Config{BackoffBase: time.Second, BackoffMax: 5 * time.Second})

	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 5*time.Second, c.backoff(4))
	assert.Equal(t, 5*time.Second, c.backoff(10))
}
