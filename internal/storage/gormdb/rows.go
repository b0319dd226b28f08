package gormdb

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// ohlcvRow maps the daily_ohlcv table.
type ohlcvRow struct {
	Symbol         string          `gorm:"primaryKey;size:32"`
	Date           time.Time       `gorm:"primaryKey;type:date"`
	Series         string          `gorm:"size:8"`
	Open           decimal.Decimal `gorm:"type:decimal(12,2)"`
	High           decimal.Decimal `gorm:"type:decimal(12,2)"`
	Low            decimal.Decimal `gorm:"type:decimal(12,2)"`
	Close          decimal.Decimal `gorm:"type:decimal(12,2)"`
	PrevClose      decimal.Decimal `gorm:"type:decimal(12,2)"`
	Volume         int64
	Value          decimal.Decimal `gorm:"type:decimal(18,2)"`
	VWAP           decimal.Decimal `gorm:"column:vwap;type:decimal(12,2)"`
	Trades         int64
	DeliveryVolume int64
	DeliveryPct    decimal.Decimal `gorm:"type:decimal(6,2)"`
}

func (ohlcvRow) TableName() string { return "daily_ohlcv" }

func toOHLCVRow(r models.OHLCVRecord) ohlcvRow {
	return ohlcvRow{
		Symbol:         r.Symbol,
		Date:           models.TradingDate(r.Date),
		Series:         r.Series,
		Open:           r.Open,
		High:           r.High,
		Low:            r.Low,
		Close:          r.Close,
		PrevClose:      r.PrevClose,
		Volume:         r.Volume,
		Value:          r.Value,
		VWAP:           r.VWAP,
		Trades:         r.Trades,
		DeliveryVolume: r.DeliveryVolume,
		DeliveryPct:    r.DeliveryPct,
	}
}

func (r ohlcvRow) toModel() models.OHLCVRecord {
	return models.OHLCVRecord{
		Symbol:         r.Symbol,
		Date:           models.TradingDate(r.Date.UTC()),
		Series:         r.Series,
		Open:           r.Open,
		High:           r.High,
		Low:            r.Low,
		Close:          r.Close,
		PrevClose:      r.PrevClose,
		Volume:         r.Volume,
		Value:          r.Value,
		VWAP:           r.VWAP,
		Trades:         r.Trades,
		DeliveryVolume: r.DeliveryVolume,
		DeliveryPct:    r.DeliveryPct,
	}
}

// stockRow maps the stocks table.
type stockRow struct {
	Symbol      string `gorm:"primaryKey;size:32"`
	CompanyName string `gorm:"size:255"`
	LotSize     int
	LastUpdated time.Time
}

func (stockRow) TableName() string { return "stocks" }

// indexRow maps the index_ohlcv table.
type indexRow struct {
	IndexName string          `gorm:"primaryKey;size:64"`
	Date      time.Time       `gorm:"primaryKey;type:date"`
	Open      decimal.Decimal `gorm:"type:decimal(12,2)"`
	High      decimal.Decimal `gorm:"type:decimal(12,2)"`
	Low       decimal.Decimal `gorm:"type:decimal(12,2)"`
	Close     decimal.Decimal `gorm:"type:decimal(12,2)"`
}

func (indexRow) TableName() string { return "index_ohlcv" }
