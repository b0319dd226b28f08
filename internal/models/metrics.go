package models

import "time"

// DerivedMetrics holds the indicators computed from one symbol's stored history.
// Nil pointers mean "not computable from the available history" and serialize as null.
type DerivedMetrics struct {
	Symbol       string    `json:"symbol"`
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
	ChangePct    *float64  `json:"change_pct"`
	YTDPct       *float64  `json:"ytd_pct"`
	Pct1M        *float64  `json:"pct_1m"`
	Pct1Y        *float64  `json:"pct_1y"`
	SMA20        *float64  `json:"sma_20"`
	SMA50        *float64  `json:"sma_50"`
	SMA200       *float64  `json:"sma_200"`
	AboveSMA20   *bool     `json:"above_sma_20"`
	AboveSMA50   *bool     `json:"above_sma_50"`
	AboveSMA200  *bool     `json:"above_sma_200"`
	High52W      *float64  `json:"high_52w"`
	Delta52WHigh *float64  `json:"delta_52w_high"`
	ATR14        *float64  `json:"atr_14"`
	RSRank       *float64  `json:"rs_rank"`
	Sparkline    []float64 `json:"sparkline"`
}
