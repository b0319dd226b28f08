package models

import "time"

// StockListQuery is a listing request. Zero values take defaults.
type StockListQuery struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search"`
	Sort   string `json:"sort"`
	Order  string `json:"order"`
}

// StockRow is one listing row: the latest session joined with derived metrics.
type StockRow struct {
	Symbol       string    `json:"symbol"`
	CompanyName  string    `json:"company_name"`
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
	ChangePct    *float64  `json:"change_pct"`
	Volume       int64     `json:"volume"`
	DeliveryPct  float64   `json:"delivery_pct"`
	YTDPct       *float64  `json:"ytd_pct"`
	Pct1M        *float64  `json:"pct_1m"`
	Pct1Y        *float64  `json:"pct_1y"`
	Delta52WHigh *float64  `json:"delta_52w_high"`
	RSRank       *float64  `json:"rs_rank"`
	AboveSMA20   *bool     `json:"above_sma_20"`
	AboveSMA50   *bool     `json:"above_sma_50"`
	AboveSMA200  *bool     `json:"above_sma_200"`
	Sparkline    []float64 `json:"sparkline"`
}

// StockPage is a page of listing rows.
type StockPage struct {
	Stocks     []StockRow `json:"stocks"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}

// HistoryPoint is one session in a stock detail view.
type HistoryPoint struct {
	Date           time.Time `json:"date"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	PrevClose      float64   `json:"prev_close"`
	ChangePct      *float64  `json:"change_pct"`
	Volume         int64     `json:"volume"`
	DeliveryVolume int64     `json:"delivery_volume"`
	DeliveryPct    float64   `json:"delivery_pct"`
}

// StockDetail is the single-stock view.
type StockDetail struct {
	Stock   Stock           `json:"stock"`
	Metrics *DerivedMetrics `json:"metrics"`
	History []HistoryPoint  `json:"history"` // newest first
}
