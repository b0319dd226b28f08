package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/storage/gormdb"
)

// memStore is an in-memory OHLCVStore with the same patch semantics as the real stores.
type memStore struct {
	mu   sync.Mutex
	rows map[string]map[time.Time]models.OHLCVRecord
}

func newMemStore(series ...[]models.OHLCVRecord) *memStore {
	s := &memStore{rows: make(map[string]map[time.Time]models.OHLCVRecord)}
	for _, records := range series {
		for _, r := range records {
			if s.rows[r.Symbol] == nil {
				s.rows[r.Symbol] = make(map[time.Time]models.OHLCVRecord)
			}
			s.rows[r.Symbol][r.Date] = r
		}
	}
	return s
}

func (s *memStore) UpsertRecords(_ context.Context, symbol string, records []models.OHLCVRecord) (int, error) {
	return 0, errors.New("not used")
}

func (s *memStore) PatchAdjusted(_ context.Context, symbol string, bars []models.AdjustedBar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range bars {
		r, ok := s.rows[symbol][b.Date]
		if !ok {
			continue
		}
		r.Close = b.Close
		r.Volume = b.Volume
		s.rows[symbol][b.Date] = r
		n++
	}
	return n, nil
}

func (s *memStore) GetSeries(_ context.Context, symbol string) ([]models.OHLCVRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OHLCVRecord
	for _, r := range s.rows[symbol] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memStore) GetAllSeries(ctx context.Context) (map[string][]models.OHLCVRecord, error) {
	out := make(map[string][]models.OHLCVRecord)
	for symbol := range s.rows {
		series, _ := s.GetSeries(ctx, symbol)
		out[symbol] = series
	}
	return out, nil
}

func (s *memStore) Symbols(context.Context) ([]string, error) { return nil, nil }

func (s *memStore) Stats(context.Context) (*models.StoreStats, error) {
	return &models.StoreStats{}, nil
}

type mockSecondary struct {
	bars  map[string][]models.AdjustedBar
	errs  map[string]error
	calls []string
}

func (m *mockSecondary) SourceSymbol(symbol string) string { return symbol + ".NS" }

func (m *mockSecondary) FetchAdjusted(_ context.Context, symbol string, _ time.Time) ([]models.AdjustedBar, error) {
	m.calls = append(m.calls, symbol)
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return m.bars[symbol], nil
}

func (m *mockSecondary) FetchIndex(context.Context, string, string, time.Time) ([]models.IndexBar, error) {
	return nil, nil
}

func day(d int) time.Time {
	return time.Date(2025, 2, d, 0, 0, 0, 0, time.UTC)
}

func rec(symbol string, d int, prevClose, close float64) models.OHLCVRecord {
	return models.OHLCVRecord{
		Symbol:         symbol,
		Date:           day(d),
		Series:         models.SeriesEquity,
		Open:           decimal.NewFromFloat(close),
		High:           decimal.NewFromFloat(close + 5),
		Low:            decimal.NewFromFloat(close - 5),
		Close:          decimal.NewFromFloat(close),
		PrevClose:      decimal.NewFromFloat(prevClose),
		Volume:         1000,
		DeliveryVolume: 400,
		DeliveryPct:    decimal.NewFromInt(40),
	}
}

// splitSeries is a 1:2 split on day 4: prevClose is adjusted, earlier closes are not.
func splitSeries(symbol string) []models.OHLCVRecord {
	return []models.OHLCVRecord{
		rec(symbol, 3, 198, 200),
		rec(symbol, 4, 100, 102),
		rec(symbol, 5, 102, 104),
	}
}

func cleanSeries(symbol string) []models.OHLCVRecord {
	return []models.OHLCVRecord{
		rec(symbol, 3, 99, 100),
		rec(symbol, 4, 100, 101),
		rec(symbol, 5, 101.03, 103),
	}
}

func TestDetectSeries(t *testing.T) {
	series := map[string][]models.OHLCVRecord{
		"SPLIT": splitSeries("SPLIT"),
		"CLEAN": cleanSeries("CLEAN"),
		"ONE":   {rec("ONE", 3, 10, 20)},
	}

	flagged := DetectSeries(series, DefaultTolerance)

	require.Len(t, flagged, 1)
	assert.True(t, flagged.Has("SPLIT"))
	m := flagged["SPLIT"]
	assert.True(t, m.Date.Equal(day(4)))
	assert.Equal(t, 100.0, m.PrevClose)
	assert.Equal(t, 200.0, m.PriorClose)
	assert.Equal(t, 1, m.Discrepancies)
}

func TestDetectSeries_UnorderedInput(t *testing.T) {
	records := cleanSeries("X")
	records[0], records[2] = records[2], records[0]

	flagged := DetectSeries(map[string][]models.OHLCVRecord{"X": records}, DefaultTolerance)
	assert.Empty(t, flagged)
}

func TestDetectSeries_Tolerance(t *testing.T) {
	tests := []struct {
		name      string
		records   []models.OHLCVRecord
		tolerance float64
		flagged   bool
	}{
		{"rounding gap within tolerance", cleanSeries("X"), 0.05, false},
		{"rounding gap above tolerance", cleanSeries("X"), 0.01, true},
		{"one tick at low price", []models.OHLCVRecord{rec("X", 3, 10, 10.10), rec("X", 4, 10.15, 10.20)}, 0.05, false},
		{"one tick at high price", []models.OHLCVRecord{rec("X", 3, 100, 100.05), rec("X", 4, 100.10, 100.20)}, 0.05, false},
		{"one tick at low price, tighter tolerance", []models.OHLCVRecord{rec("X", 3, 10, 10.10), rec("X", 4, 10.15, 10.20)}, 0.04, true},
		{"one tick at high price, tighter tolerance", []models.OHLCVRecord{rec("X", 3, 100, 100.05), rec("X", 4, 100.10, 100.20)}, 0.04, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagged := DetectSeries(map[string][]models.OHLCVRecord{"X": tt.records}, tt.tolerance)
			assert.Equal(t, tt.flagged, flagged.Has("X"))
		})
	}
}

func TestDetector_Detect(t *testing.T) {
	store := newMemStore(splitSeries("SPLIT"), cleanSeries("CLEAN"))
	d := NewDetector(store, common.NewSilentLogger(), -1)

	flagged, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SPLIT"}, flagged.Symbols())
}

func TestAdjuster_MergeIsolation(t *testing.T) {
	store := newMemStore(splitSeries("SPLIT"), cleanSeries("CLEAN"))
	source := &mockSecondary{bars: map[string][]models.AdjustedBar{
		"SPLIT": {
			{Date: day(3), Close: decimal.NewFromInt(100), Volume: 2000},
			{Date: day(4), Close: decimal.NewFromInt(102), Volume: 1000},
			{Date: day(5), Close: decimal.NewFromInt(104), Volume: 1000},
			{Date: day(6), Close: decimal.NewFromInt(106), Volume: 1000}, // not stored
		},
	}}
	a := NewAdjuster(source, store, common.NewSilentLogger())

	flagged := DetectSeries(map[string][]models.OHLCVRecord{"SPLIT": splitSeries("SPLIT")}, DefaultTolerance)
	summary := a.Adjust(context.Background(), flagged, day(1))

	assert.Equal(t, []string{"SPLIT"}, summary.Adjusted)
	assert.Equal(t, 3, summary.RowsPatched)
	assert.Empty(t, summary.Diagnostics)

	series, _ := store.GetSeries(context.Background(), "SPLIT")
	require.Len(t, series, 3, "adjuster never inserts")
	assert.Equal(t, "100", series[0].Close.String())
	assert.Equal(t, int64(2000), series[0].Volume)
	assert.Equal(t, "198", series[0].PrevClose.String())
	assert.Equal(t, "205", series[0].High.String())
	assert.Equal(t, int64(400), series[0].DeliveryVolume)

	clean, _ := store.GetSeries(context.Background(), "CLEAN")
	assert.Equal(t, cleanSeries("CLEAN"), clean)

	// adjusted series no longer mismatches
	all, _ := store.GetAllSeries(context.Background())
	assert.Empty(t, DetectSeries(all, DefaultTolerance))
}

func TestAdjuster_UnavailableAndUnresolved(t *testing.T) {
	store := newMemStore(splitSeries("A"), splitSeries("B"), splitSeries("C"))
	source := &mockSecondary{
		bars: map[string][]models.AdjustedBar{
			"C": {{Date: day(20), Close: decimal.NewFromInt(1), Volume: 1}},
		},
		errs: map[string]error{
			"A": &common.PermanentFetchError{Source: "yahoo", Symbol: "A", Err: errors.New("HTTP 404")},
		},
	}
	a := NewAdjuster(source, store, common.NewSilentLogger())

	all, _ := store.GetAllSeries(context.Background())
	summary := a.Adjust(context.Background(), DetectSeries(all, DefaultTolerance), day(1))

	assert.Equal(t, []string{"A", "B", "C"}, source.calls, "processed sequentially in symbol order")
	assert.Equal(t, []string{"A", "B"}, summary.Unavailable)
	assert.Equal(t, []string{"C"}, summary.Unresolved)
	require.Len(t, summary.Diagnostics, 1)
	assert.Contains(t, summary.Diagnostics[0], "mismatch unresolved after adjustment")
	assert.Empty(t, summary.Adjusted)
}

func TestAdjuster_SQLiteMergeIsolation(t *testing.T) {
	m, err := gormdb.Open(common.NewSilentLogger(), sqlite.Open(filepath.Join(t.TempDir(), "t.db")), "sqlite")
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	_, err = m.OHLCVStore().UpsertRecords(ctx, "SPLIT", splitSeries("SPLIT"))
	require.NoError(t, err)
	_, err = m.OHLCVStore().UpsertRecords(ctx, "CLEAN", cleanSeries("CLEAN"))
	require.NoError(t, err)

	flagged, err := NewDetector(m.OHLCVStore(), common.NewSilentLogger(), DefaultTolerance).Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"SPLIT"}, flagged.Symbols())

	source := &mockSecondary{bars: map[string][]models.AdjustedBar{
		"SPLIT": {{Date: day(3), Close: decimal.NewFromInt(100), Volume: 2000}},
	}}
	summary := NewAdjuster(source, m.OHLCVStore(), common.NewSilentLogger()).Adjust(ctx, flagged, day(1))
	assert.Equal(t, 1, summary.RowsPatched)

	series, err := m.OHLCVStore().GetSeries(ctx, "SPLIT")
	require.NoError(t, err)
	assert.Equal(t, "100.00", series[0].Close.StringFixed(2))
	assert.Equal(t, "198.00", series[0].PrevClose.StringFixed(2))
	assert.Equal(t, "205.00", series[0].High.StringFixed(2))

	clean, err := m.OHLCVStore().GetSeries(ctx, "CLEAN")
	require.NoError(t, err)
	assert.Equal(t, "100.00", clean[0].Close.StringFixed(2))

	flagged, err = NewDetector(m.OHLCVStore(), common.NewSilentLogger(), DefaultTolerance).Detect(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}
