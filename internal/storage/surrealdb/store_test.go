package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(symbol string, d int, close, prev float64, volume int64) models.OHLCVRecord {
	c := decimal.NewFromFloat(close)
	return models.OHLCVRecord{
		Symbol:         symbol,
		Date:           day(d),
		Series:         models.SeriesEquity,
		Open:           c,
		High:           c.Add(decimal.NewFromInt(2)),
		Low:            c.Sub(decimal.NewFromInt(2)),
		Close:          c,
		PrevClose:      decimal.NewFromFloat(prev),
		Volume:         volume,
		DeliveryVolume: volume / 2,
		DeliveryPct:    decimal.NewFromInt(50),
	}
}

func TestOHLCVStore_UpsertIdempotent(t *testing.T) {
	m := testManager(t)
	store := m.OHLCVStore()
	ctx := context.Background()

	batch := []models.OHLCVRecord{
		bar("SBIN", 3, 101.25, 100, 1100),
		bar("SBIN", 2, 100, 99, 1000),
	}
	for i := 0; i < 2; i++ {
		n, err := store.UpsertRecords(ctx, "SBIN", batch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	series, err := store.GetSeries(ctx, "SBIN")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, series[0].Date.Equal(day(2)))
	assert.Equal(t, "101.25", series[1].Close.StringFixed(2))
}

func TestOHLCVStore_PatchAdjusted(t *testing.T) {
	m := testManager(t)
	store := m.OHLCVStore()
	ctx := context.Background()

	_, err := store.UpsertRecords(ctx, "SBIN", []models.OHLCVRecord{bar("SBIN", 2, 200, 198, 1000)})
	require.NoError(t, err)
	_, err = store.UpsertRecords(ctx, "TCS", []models.OHLCVRecord{bar("TCS", 2, 3000, 2990, 500)})
	require.NoError(t, err)

	patched, err := store.PatchAdjusted(ctx, "SBIN", []models.AdjustedBar{
		{Date: day(2), Close: decimal.NewFromInt(100), Volume: 2000},
		{Date: day(9), Close: decimal.NewFromInt(100), Volume: 2000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, patched)

	series, err := store.GetSeries(ctx, "SBIN")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "100.00", series[0].Close.StringFixed(2))
	assert.Equal(t, int64(2000), series[0].Volume)
	assert.Equal(t, "198.00", series[0].PrevClose.StringFixed(2))
	assert.Equal(t, int64(500), series[0].DeliveryVolume)

	other, err := store.GetSeries(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, "3000.00", other[0].Close.StringFixed(2))
}

func TestOHLCVStore_PatchAdjustedIsAtomic(t *testing.T) {
	m := testManager(t)
	store := m.OHLCVStore()
	ctx := context.Background()

	_, err := store.UpsertRecords(ctx, "SBIN", []models.OHLCVRecord{
		bar("SBIN", 2, 200, 198, 1000),
		bar("SBIN", 3, 202, 200, 1000),
	})
	require.NoError(t, err)

	// reject non-positive closes so the second UPDATE fails inside the transaction
	_, err = surrealdb.Query[any](ctx, m.db, "DEFINE FIELD OVERWRITE close ON daily_ohlcv ASSERT $value > 0", nil)
	require.NoError(t, err)

	patched, err := store.PatchAdjusted(ctx, "SBIN", []models.AdjustedBar{
		{Date: day(2), Close: decimal.NewFromInt(100), Volume: 2000},
		{Date: day(3), Close: decimal.Zero, Volume: 2000},
	})
	require.Error(t, err)
	assert.Equal(t, 0, patched)

	series, err := store.GetSeries(ctx, "SBIN")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "200.00", series[0].Close.StringFixed(2), "earlier update rolled back")
	assert.Equal(t, int64(1000), series[0].Volume)
	assert.Equal(t, "202.00", series[1].Close.StringFixed(2))
}

func TestOHLCVStore_Stats(t *testing.T) {
	m := testManager(t)
	store := m.OHLCVStore()
	ctx := context.Background()

	_, err := store.UpsertRecords(ctx, "SBIN", []models.OHLCVRecord{
		bar("SBIN", 2, 100, 99, 1000),
		bar("SBIN", 3, 101, 100, 1000),
	})
	require.NoError(t, err)
	_, err = store.UpsertRecords(ctx, "TCS", []models.OHLCVRecord{bar("TCS", 3, 2900, 3000, 500)})
	require.NoError(t, err)

	all, err := store.GetAllSeries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SymbolCount)
	assert.Equal(t, int64(3), stats.DataPoints)
	assert.True(t, stats.FirstDate.Equal(day(2)))
	assert.True(t, stats.LastDate.Equal(day(3)))
	assert.Equal(t, 1, stats.PositiveCount)
}

func TestStockAndIndexStores(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.StockStore().UpsertStocks(ctx, []models.Stock{
		{Symbol: "M&M", CompanyName: "Mahindra & Mahindra", LotSize: 350},
		{Symbol: "BAJAJ-AUTO", CompanyName: "Bajaj Auto", LotSize: 75},
	})
	require.NoError(t, err)

	list, err := m.StockStore().ListStocks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "BAJAJ-AUTO", list[0].Symbol)

	st, err := m.StockStore().GetStock(ctx, "M&M")
	require.NoError(t, err)
	assert.Equal(t, 350, st.LotSize)

	_, err = m.IndexStore().UpsertIndexBars(ctx, "NIFTY 50", []models.IndexBar{
		{Date: day(2), Close: decimal.NewFromInt(23700)},
		{Date: day(3), Close: decimal.NewFromInt(24000)},
	})
	require.NoError(t, err)

	bars, err := m.IndexStore().GetIndexSeries(ctx, "NIFTY 50", day(1))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "24000.00", bars[1].Close.StringFixed(2))
}
