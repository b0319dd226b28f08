// Package models defines data structures for fnoscreen
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeriesEquity is the only primary-source series kept by the collector.
const SeriesEquity = "EQ"

// OHLCVRecord is one stored daily bar, keyed by (Symbol, Date).
// Close and Volume are the only fields the adjuster may overwrite; delivery
// fields come from the primary source alone.
type OHLCVRecord struct {
	Symbol         string          `json:"symbol"`
	Date           time.Time       `json:"date"`
	Series         string          `json:"series"`
	Open           decimal.Decimal `json:"open"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Close          decimal.Decimal `json:"close"`
	PrevClose      decimal.Decimal `json:"prev_close"`
	Volume         int64           `json:"volume"`
	Value          decimal.Decimal `json:"value"`
	VWAP           decimal.Decimal `json:"vwap"`
	Trades         int64           `json:"trades"`
	DeliveryVolume int64           `json:"delivery_volume"`
	DeliveryPct    decimal.Decimal `json:"delivery_pct"`
}

// Key returns the storage key "SYMBOL|YYYY-MM-DD".
func (r OHLCVRecord) Key() string {
	return RecordKey(r.Symbol, r.Date)
}

// ChangePct is the session change against the stored prevClose, nil when prevClose is zero.
func (r OHLCVRecord) ChangePct() *float64 {
	if r.PrevClose.IsZero() {
		return nil
	}
	v := r.Close.Sub(r.PrevClose).Div(r.PrevClose).InexactFloat64() * 100
	return &v
}

// RecordKey builds the (symbol, date) key used by stores and tests.
func RecordKey(symbol string, date time.Time) string {
	return symbol + "|" + date.Format("2006-01-02")
}

// TradingDate normalises t to UTC midnight of its calendar date in t's own location.
func TradingDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AdjustedBar is the secondary source payload merged into stored rows.
type AdjustedBar struct {
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Stock is a member of the symbol universe.
type Stock struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	LotSize     int       `json:"lot_size"`
	LastUpdated time.Time `json:"last_updated"`
}

// IndexBar is one daily bar of a benchmark index.
type IndexBar struct {
	Index string          `json:"index"`
	Date  time.Time       `json:"date"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// StoreStats summarises stored data.
type StoreStats struct {
	SymbolCount   int       `json:"symbol_count"`
	DataPoints    int64     `json:"data_points"`
	FirstDate     time.Time `json:"first_date"`
	LastDate      time.Time `json:"last_date"`
	PositiveCount int       `json:"positive_count"` // symbols whose latest-session close beat prevClose
	LastUpdated   time.Time `json:"last_updated"`
}
