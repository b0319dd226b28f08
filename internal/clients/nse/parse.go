package nse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// flexDecimal handles archive values that may be JSON numbers or strings
// such as "1,234.50". Empty strings and "-" decode as zero.
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		f.Decimal = decimal.Zero
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}

	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		f.Decimal = decimal.Zero
		return nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s into decimal", string(data))
	}
	f.Decimal = d
	return nil
}

// historyRow is one row of the security-wise archive response.
type historyRow struct {
	Symbol         string      `json:"CH_SYMBOL"`
	Series         string      `json:"CH_SERIES"`
	Timestamp      string      `json:"CH_TIMESTAMP"`
	MTimestamp     string      `json:"mTIMESTAMP"`
	Open           flexDecimal `json:"CH_OPENING_PRICE"`
	High           flexDecimal `json:"CH_TRADE_HIGH_PRICE"`
	Low            flexDecimal `json:"CH_TRADE_LOW_PRICE"`
	Close          flexDecimal `json:"CH_CLOSING_PRICE"`
	PrevClose      flexDecimal `json:"CH_PREVIOUS_CLS_PRICE"`
	Volume         flexDecimal `json:"CH_TOT_TRADED_QTY"`
	Value          flexDecimal `json:"CH_TOT_TRADED_VAL"`
	VWAP           flexDecimal `json:"VWAP"`
	Trades         flexDecimal `json:"CH_TOTAL_TRADES"`
	DeliveryVolume flexDecimal `json:"COP_DELIV_QTY"`
	DeliveryPct    flexDecimal `json:"COP_DELIV_PERC"`
}

var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"02-01-2006",
	"02 Jan 2006",
}

// parseDate accepts every date format the archive has been seen to emit.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && strings.Contains(s, "T") {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TradingDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// toRecord validates the row and converts it to a record. ok is false for rows of
// series other than EQ, which are dropped without counting as rejected.
func (r historyRow) toRecord(symbol string) (models.OHLCVRecord, bool, error) {
	series := strings.ToUpper(strings.TrimSpace(r.Series))
	if series != models.SeriesEquity {
		return models.OHLCVRecord{}, false, nil
	}

	raw := r.Timestamp
	if raw == "" {
		raw = r.MTimestamp
	}
	date, err := parseDate(raw)
	if err != nil {
		return models.OHLCVRecord{}, false, err
	}

	if !r.Close.IsPositive() {
		return models.OHLCVRecord{}, false, errors.New("non-positive close")
	}
	if r.Volume.IsNegative() || r.DeliveryVolume.IsNegative() {
		return models.OHLCVRecord{}, false, errors.New("negative volume")
	}

	if r.Symbol != "" && !strings.EqualFold(strings.TrimSpace(r.Symbol), symbol) {
		return models.OHLCVRecord{}, false, fmt.Errorf("row for %s in %s response", r.Symbol, symbol)
	}

	return models.OHLCVRecord{
		Symbol:         symbol,
		Date:           date,
		Series:         series,
		Open:           r.Open.Round(2),
		High:           r.High.Round(2),
		Low:            r.Low.Round(2),
		Close:          r.Close.Round(2),
		PrevClose:      r.PrevClose.Round(2),
		Volume:         r.Volume.IntPart(),
		Value:          r.Value.Round(2),
		VWAP:           r.VWAP.Round(2),
		Trades:         r.Trades.IntPart(),
		DeliveryVolume: r.DeliveryVolume.IntPart(),
		DeliveryPct:    r.DeliveryPct.Round(2),
	}, true, nil
}
