// Package yahoo provides a client for the Yahoo Finance chart API, the adjusted
// price source used to correct unapplied corporate actions.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fnoscreen/internal/clients/pacer"
	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	DefaultTimeout = 30 * time.Second
	DefaultSuffix  = ".NS"

	sourceName = "yahoo"
)

// Client implements interfaces.SecondarySource
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	pacer      *pacer.Pacer
	suffix     string
	overrides  map[string]string
	now        func() time.Time
}

var _ interfaces.SecondarySource = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPacer shares a pacer with other clients
func WithPacer(p *pacer.Pacer) ClientOption {
	return func(c *Client) {
		c.pacer = p
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSymbolMapping sets the ticker suffix and explicit per-symbol overrides.
func WithSymbolMapping(suffix string, overrides map[string]string) ClientOption {
	return func(c *Client) {
		c.suffix = suffix
		c.overrides = overrides
	}
}

// NewClient creates a new Yahoo chart client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: common.NewSilentLogger(),
		pacer:  pacer.New(0, nil),
		suffix: DefaultSuffix,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SourceSymbol maps an internal symbol to its Yahoo ticker, e.g. SBIN -> SBIN.NS.
func (c *Client) SourceSymbol(symbol string) string {
	if mapped, ok := c.overrides[symbol]; ok && mapped != "" {
		return mapped
	}
	return symbol + c.suffix
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// chartSession is one decoded bar. Nil fields were null in the response.
type chartSession struct {
	date                   time.Time
	open, high, low, close *float64
	adjClose, volume       *float64
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// fetchChart retrieves daily bars for ticker since from. symbol labels errors.
func (c *Client) fetchChart(ctx context.Context, symbol, ticker string, from time.Time) ([]chartSession, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	params.Set("period2", strconv.FormatInt(c.now().Add(24*time.Hour).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "split,div")
	params.Set("includeAdjustedClose", "true")

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	c.logger.Debug().Str("ticker", ticker).Msg("Yahoo chart request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, err
		}
		return nil, &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: fmt.Errorf("read body: %w", err)}
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && chart.Chart.Error != nil {
			msg = chart.Chart.Error.Description
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: err}
		}
		return nil, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: err}
	}
	if decodeErr != nil {
		return nil, &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: fmt.Errorf("decode: %w", decodeErr)}
	}
	if chart.Chart.Error != nil {
		return nil, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: errors.New(chart.Chart.Error.Description)}
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	// timestamps are session opens in UTC; shift by the exchange offset to get the local trading date
	offset := time.Duration(result.Meta.GMTOffset) * time.Second

	byDate := make(map[time.Time]chartSession, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		s := chartSession{
			date:     models.TradingDate(time.Unix(ts, 0).UTC().Add(offset)),
			open:     at(quote.Open, i),
			high:     at(quote.High, i),
			low:      at(quote.Low, i),
			close:    at(quote.Close, i),
			adjClose: at(adj, i),
			volume:   at(quote.Volume, i),
		}
		if s.close == nil && s.adjClose == nil {
			continue // holiday or halted session
		}
		if s.date.Before(models.TradingDate(from)) {
			continue
		}
		byDate[s.date] = s
	}

	sessions := make([]chartSession, 0, len(byDate))
	for _, s := range byDate {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].date.Before(sessions[j].date) })
	return sessions, nil
}

// FetchAdjusted returns the adjusted close (adjclose when present, else the
// split-adjusted close) and volume per trading date for symbol since from.
func (c *Client) FetchAdjusted(ctx context.Context, symbol string, from time.Time) ([]models.AdjustedBar, error) {
	ticker := c.SourceSymbol(symbol)
	sessions, err := c.fetchChart(ctx, symbol, ticker, from)
	if err != nil {
		return nil, err
	}

	bars := make([]models.AdjustedBar, 0, len(sessions))
	for _, s := range sessions {
		price := s.adjClose
		if price == nil {
			price = s.close
		}
		if *price <= 0 {
			continue
		}
		var volume int64
		if s.volume != nil {
			volume = int64(*s.volume)
		}
		bars = append(bars, models.AdjustedBar{
			Date:   s.date,
			Close:  decimal.NewFromFloat(*price).Round(2),
			Volume: volume,
		})
	}

	c.logger.Debug().Str("symbol", symbol).Str("ticker", ticker).Int("bars", len(bars)).Msg("Yahoo adjusted series fetched")
	return bars, nil
}

// FetchIndex returns daily OHLC bars for an index ticker such as ^NSEI, stored under name.
func (c *Client) FetchIndex(ctx context.Context, ticker, name string, from time.Time) ([]models.IndexBar, error) {
	sessions, err := c.fetchChart(ctx, name, ticker, from)
	if err != nil {
		return nil, err
	}

	dec := func(v *float64) decimal.Decimal {
		if v == nil {
			return decimal.Zero
		}
		return decimal.NewFromFloat(*v).Round(2)
	}

	bars := make([]models.IndexBar, 0, len(sessions))
	for _, s := range sessions {
		if s.close == nil {
			continue
		}
		bars = append(bars, models.IndexBar{
			Index: name,
			Date:  s.date,
			Open:  dec(s.open),
			High:  dec(s.high),
			Low:   dec(s.low),
			Close: dec(s.close),
		})
	}
	return bars, nil
}
