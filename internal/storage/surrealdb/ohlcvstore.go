package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// OHLCVStore implements interfaces.OHLCVStore on the daily_ohlcv table.
type OHLCVStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewOHLCVStore creates a new OHLCVStore.
func NewOHLCVStore(db *surrealdb.DB, logger *common.Logger) *OHLCVStore {
	return &OHLCVStore{db: db, logger: logger}
}

// UpsertRecords writes the batch inside one transaction so a failure leaves no partial rows.
func (s *OHLCVStore) UpsertRecords(ctx context.Context, symbol string, records []models.OHLCVRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(records)*2)
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i, r := range records {
		if r.Symbol != symbol {
			return 0, fmt.Errorf("record for %s in %s batch", r.Symbol, symbol)
		}
		rid := fmt.Sprintf("rid%d", i)
		doc := fmt.Sprintf("doc%d", i)
		fmt.Fprintf(&sb, "UPSERT $%s CONTENT $%s;\n", rid, doc)
		vars[rid] = surrealmodels.NewRecordID(tableOHLCV, recordID(symbol, models.TradingDate(r.Date)))
		vars[doc] = toOHLCVDoc(r)
	}
	sb.WriteString("COMMIT TRANSACTION;")

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]ohlcvDoc](ctx, s.db, sb.String(), vars)
		if err == nil {
			return len(records), nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to upsert %s after retries: %w", symbol, lastErr)
}

// PatchAdjusted sets close and volume on existing rows inside one transaction.
// UPDATE never creates records; a failed statement leaves every row as it was.
func (s *OHLCVStore) PatchAdjusted(ctx context.Context, symbol string, bars []models.AdjustedBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(bars)*3)
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i, b := range bars {
		rid := fmt.Sprintf("rid%d", i)
		closeVar := fmt.Sprintf("close%d", i)
		volumeVar := fmt.Sprintf("volume%d", i)
		fmt.Fprintf(&sb, "UPDATE $%s SET close = $%s, volume = $%s;\n", rid, closeVar, volumeVar)
		vars[rid] = surrealmodels.NewRecordID(tableOHLCV, recordID(symbol, models.TradingDate(b.Date)))
		vars[closeVar] = fromDecimal(b.Close)
		vars[volumeVar] = b.Volume
	}
	sb.WriteString("COMMIT TRANSACTION;")

	results, err := surrealdb.Query[[]ohlcvDoc](ctx, s.db, sb.String(), vars)
	if err != nil {
		return 0, fmt.Errorf("failed to patch %s: %w", symbol, err)
	}

	// BEGIN and COMMIT come back as empty results on servers that report them
	patched := 0
	if results != nil {
		for _, r := range *results {
			patched += len(r.Result)
		}
	}
	return patched, nil
}

func (s *OHLCVStore) GetSeries(ctx context.Context, symbol string) ([]models.OHLCVRecord, error) {
	sql := "SELECT * FROM daily_ohlcv WHERE symbol = $symbol ORDER BY date ASC"
	docs, err := queryDocs[ohlcvDoc](ctx, s.db, sql, map[string]any{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("failed to get series %s: %w", symbol, err)
	}
	out := make([]models.OHLCVRecord, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *OHLCVStore) GetAllSeries(ctx context.Context) (map[string][]models.OHLCVRecord, error) {
	sql := "SELECT * FROM daily_ohlcv ORDER BY symbol ASC, date ASC"
	docs, err := queryDocs[ohlcvDoc](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get all series: %w", err)
	}
	out := make(map[string][]models.OHLCVRecord)
	for _, d := range docs {
		out[d.Symbol] = append(out[d.Symbol], d.toModel())
	}
	return out, nil
}

func (s *OHLCVStore) Symbols(ctx context.Context) ([]string, error) {
	type symbolRow struct {
		Symbol string `json:"symbol"`
	}
	sql := "SELECT symbol FROM daily_ohlcv GROUP BY symbol ORDER BY symbol ASC"
	rows, err := queryDocs[symbolRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	symbols := make([]string, len(rows))
	for i, r := range rows {
		symbols[i] = r.Symbol
	}
	return symbols, nil
}

func (s *OHLCVStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{}

	total, err := s.count(ctx, "SELECT count() AS cnt FROM daily_ohlcv GROUP ALL", nil)
	if err != nil {
		return nil, err
	}
	stats.DataPoints = total
	if total == 0 {
		return stats, nil
	}

	symbols, err := s.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	stats.SymbolCount = len(symbols)

	type dateRow struct {
		Date string `json:"date"`
	}
	first, err := queryDocs[dateRow](ctx, s.db, "SELECT date FROM daily_ohlcv ORDER BY date ASC LIMIT 1", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read first date: %w", err)
	}
	last, err := queryDocs[dateRow](ctx, s.db, "SELECT date FROM daily_ohlcv ORDER BY date DESC LIMIT 1", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read last date: %w", err)
	}
	if len(first) > 0 {
		stats.FirstDate = parseDate(first[0].Date)
	}
	if len(last) > 0 {
		stats.LastDate = parseDate(last[0].Date)
	}

	positive, err := s.count(ctx,
		"SELECT count() AS cnt FROM daily_ohlcv WHERE date = $date AND close > prev_close GROUP ALL",
		map[string]any{"date": stats.LastDate.Format(common.DateLayout)})
	if err != nil {
		return nil, err
	}
	stats.PositiveCount = int(positive)

	updated, err := queryDocs[stockDoc](ctx, s.db, "SELECT * FROM stocks ORDER BY last_updated DESC LIMIT 1", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}
	if len(updated) > 0 {
		stats.LastUpdated = updated[0].LastUpdated.UTC()
	} else {
		stats.LastUpdated = stats.LastDate
	}

	return stats, nil
}

func (s *OHLCVStore) count(ctx context.Context, sql string, vars map[string]any) (int64, error) {
	type countRow struct {
		Cnt int64 `json:"cnt"`
	}
	rows, err := queryDocs[countRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Cnt, nil
}

// queryDocs runs a single-statement query and returns its first result set.
func queryDocs[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// Compile-time check
var _ interfaces.OHLCVStore = (*OHLCVStore)(nil)
