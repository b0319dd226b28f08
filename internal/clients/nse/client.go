// Package nse provides a client for the NSE price/volume/deliverable archive
package nse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/clients/pacer"
	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const (
	DefaultBaseURL = "https://www.nseindia.com"
	DefaultTimeout = 30 * time.Second

	sourceName = "nse"
	userAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client implements interfaces.PrimarySource
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	pacer      *pacer.Pacer

	mu     sync.Mutex
	primed bool
}

var _ interfaces.PrimarySource = (*Client)(nil)

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

// NewClient creates a new NSE client
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		logger: common.NewSilentLogger(),
		pacer:  pacer.New(0, nil),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-200 response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("NSE API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// prime fetches the home page once so the cookie jar holds the session cookies
// the API endpoints require.
func (c *Client) prime(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primed {
		return nil
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.primed = true
	return nil
}

func (c *Client) resetSession() {
	c.mu.Lock()
	c.primed = false
	c.mu.Unlock()
}

// get performs a paced GET request and decodes the JSON body into result.
// Failures are classified into transient and permanent fetch errors for symbol.
func (c *Client) get(ctx context.Context, symbol, path string, params url.Values, result interface{}) error {
	if err := c.prime(ctx); err != nil {
		return classify(ctx, symbol, fmt.Errorf("session: %w", err))
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return classify(ctx, symbol, err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.baseURL+"/")

	c.logger.Debug().Str("url", c.baseURL+path).Str("symbol", symbol).Msg("NSE API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, symbol, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Endpoint: path}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			// expired session cookies
			c.resetSession()
			return &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: apiErr}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: apiErr}
		default:
			return &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: apiErr}
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return classify(ctx, symbol, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// classify maps transport and context errors onto the fetch error taxonomy.
// Network failures, timeouts and undecodable bodies are transient; a caller
// cancellation is returned as is.
func classify(ctx context.Context, symbol string, err error) error {
	if ctx.Err() == context.Canceled {
		return err
	}
	return &common.TransientFetchError{Source: sourceName, Symbol: symbol, Err: err}
}

type historyResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error"`
}

// FetchHistory retrieves the security-wise price/volume/deliverable history for
// symbol, one request per year of range, and returns validated EQ records.
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.OHLCVRecord, int, error) {
	from = models.TradingDate(from)
	to = models.TradingDate(to)
	if to.Before(from) {
		return nil, 0, nil
	}

	byDate := make(map[time.Time]models.OHLCVRecord)
	rejected := 0

	for _, w := range yearWindows(from, to) {
		params := url.Values{}
		params.Set("from", w[0].Format("02-01-2006"))
		params.Set("to", w[1].Format("02-01-2006"))
		params.Set("symbol", symbol)
		params.Set("type", "priceVolumeDeliverable")
		params.Set("series", "ALL")

		var resp historyResponse
		if err := c.get(ctx, symbol, "/api/historicalOR/generateSecurityWiseHistoricalData", params, &resp); err != nil {
			return nil, 0, err
		}
		if resp.Error != "" {
			return nil, 0, &common.PermanentFetchError{Source: sourceName, Symbol: symbol, Err: errors.New(resp.Error)}
		}

		for _, raw := range resp.Data {
			var row historyRow
			if err := json.Unmarshal(raw, &row); err != nil {
				rejected++
				c.logger.Debug().Str("symbol", symbol).Err(err).Msg("Rejected malformed source row")
				continue
			}
			rec, ok, err := row.toRecord(symbol)
			if err != nil {
				rejected++
				c.logger.Debug().Str("symbol", symbol).Err(err).Msg("Rejected source row")
				continue
			}
			if !ok {
				continue
			}
			if rec.Date.Before(from) || rec.Date.After(to) {
				continue
			}
			byDate[rec.Date] = rec
		}
	}

	records := make([]models.OHLCVRecord, 0, len(byDate))
	for _, rec := range byDate {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })

	c.logger.Debug().
		Str("symbol", symbol).
		Int("records", len(records)).
		Int("rejected", rejected).
		Msg("NSE history fetched")

	return records, rejected, nil
}

// yearWindows splits [from, to] into consecutive windows of at most one year.
func yearWindows(from, to time.Time) [][2]time.Time {
	var windows [][2]time.Time
	for start := from; !start.After(to); {
		end := start.AddDate(1, 0, -1)
		if end.After(to) {
			end = to
		}
		windows = append(windows, [2]time.Time{start, end})
		start = end.AddDate(0, 0, 1)
	}
	return windows
}

type universeResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
		Meta   struct {
			CompanyName string `json:"companyName"`
		} `json:"meta"`
	} `json:"data"`
}

// FetchUniverse lists the constituents of an NSE index such as "SECURITIES IN F&O".
func (c *Client) FetchUniverse(ctx context.Context, index string) ([]models.Stock, error) {
	params := url.Values{}
	params.Set("index", index)

	var resp universeResponse
	if err := c.get(ctx, index, "/api/equity-stockIndices", params, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var stocks []models.Stock
	for _, d := range resp.Data {
		sym := strings.ToUpper(strings.TrimSpace(d.Symbol))
		// the index itself is listed as the first row
		if sym == "" || sym == strings.ToUpper(index) || seen[sym] {
			continue
		}
		seen[sym] = true
		stocks = append(stocks, models.Stock{
			Symbol:      sym,
			CompanyName: strings.TrimSpace(d.Meta.CompanyName),
			LastUpdated: now,
		})
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Symbol < stocks[j].Symbol })

	if len(stocks) == 0 {
		return nil, &common.PermanentFetchError{Source: sourceName, Symbol: index, Err: errors.New("index has no constituents")}
	}
	return stocks, nil
}
