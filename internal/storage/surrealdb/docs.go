package surrealdb

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// Prices are stored as floats and rounded back to paise on read.

type ohlcvDoc struct {
	Symbol         string  `json:"symbol"`
	Date           string  `json:"date"`
	Series         string  `json:"series"`
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Close          float64 `json:"close"`
	PrevClose      float64 `json:"prev_close"`
	Volume         int64   `json:"volume"`
	Value          float64 `json:"value"`
	VWAP           float64 `json:"vwap"`
	Trades         int64   `json:"trades"`
	DeliveryVolume int64   `json:"delivery_volume"`
	DeliveryPct    float64 `json:"delivery_pct"`
}

type stockDoc struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	LotSize     int       `json:"lot_size"`
	LastUpdated time.Time `json:"last_updated"`
}

type indexDoc struct {
	Index string  `json:"index_name"`
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// recordID builds the "SYMBOL_YYYY-MM-DD" id of a dated row.
func recordID(key string, date time.Time) string {
	return key + "_" + date.Format(common.DateLayout)
}

func fromDecimal(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func toDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(common.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toOHLCVDoc(r models.OHLCVRecord) ohlcvDoc {
	return ohlcvDoc{
		Symbol:         r.Symbol,
		Date:           models.TradingDate(r.Date).Format(common.DateLayout),
		Series:         r.Series,
		Open:           fromDecimal(r.Open),
		High:           fromDecimal(r.High),
		Low:            fromDecimal(r.Low),
		Close:          fromDecimal(r.Close),
		PrevClose:      fromDecimal(r.PrevClose),
		Volume:         r.Volume,
		Value:          fromDecimal(r.Value),
		VWAP:           fromDecimal(r.VWAP),
		Trades:         r.Trades,
		DeliveryVolume: r.DeliveryVolume,
		DeliveryPct:    fromDecimal(r.DeliveryPct),
	}
}

func (d ohlcvDoc) toModel() models.OHLCVRecord {
	return models.OHLCVRecord{
		Symbol:         d.Symbol,
		Date:           parseDate(d.Date),
		Series:         d.Series,
		Open:           toDecimal(d.Open),
		High:           toDecimal(d.High),
		Low:            toDecimal(d.Low),
		Close:          toDecimal(d.Close),
		PrevClose:      toDecimal(d.PrevClose),
		Volume:         d.Volume,
		Value:          toDecimal(d.Value),
		VWAP:           toDecimal(d.VWAP),
		Trades:         d.Trades,
		DeliveryVolume: d.DeliveryVolume,
		DeliveryPct:    toDecimal(d.DeliveryPct),
	}
}
