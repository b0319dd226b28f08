package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

func TestSourceSymbol(t *testing.T) {
	c := NewClient(WithSymbolMapping(".NS", map[string]string{"M&M": "M&M.NS", "NIFTYBEES": "NIFTYBEES.BO"}))
	assert.Equal(t, "SBIN.NS", c.SourceSymbol("SBIN"))
	assert.Equal(t, "M&M.NS", c.SourceSymbol("M&M"))
	assert.Equal(t, "NIFTYBEES.BO", c.SourceSymbol("NIFTYBEES"))
}

func TestFetchAdjusted(t *testing.T) {
	mockResp := `{"chart":{"result":[{
		"meta":{"symbol":"SBIN.NS","gmtoffset":19800},
		"timestamp":[1735789500,1735875900,1736135100],
		"indicators":{
			"quote":[{"open":[790,801,null],"high":[805,812,null],"low":[785,799,null],
			          "close":[800.25,810.5,null],"volume":[2000000,1500000,null]}],
			"adjclose":[{"adjclose":[400.126,405.25,null]}]
		}}],"error":null}}`

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mockResp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.FetchAdjusted(context.Background(), "SBIN", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/SBIN.NS", path)
	require.Len(t, bars, 2, "null session is skipped")
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, "400.13", bars[0].Close.StringFixed(2))
	assert.Equal(t, int64(2000000), bars[0].Volume)
	assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Date)
	assert.Equal(t, "405.25", bars[1].Close.StringFixed(2))
}

func TestFetchAdjusted_FallsBackToClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{"gmtoffset":19800},"timestamp":[1735789500],
			"indicators":{"quote":[{"close":[812.4],"volume":[1000]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.FetchAdjusted(context.Background(), "SBIN", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "812.40", bars[0].Close.StringFixed(2))
}

func TestFetchAdjusted_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.FetchAdjusted(context.Background(), "GONE", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, common.IsPermanent(err))
	assert.Contains(t, err.Error(), "delisted")
}

func TestFetchAdjusted_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.FetchAdjusted(context.Background(), "SBIN", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, common.IsTransient(err))
}

func TestFetchIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/%5ENSEI", r.URL.EscapedPath())
		w.Write([]byte(`{"chart":{"result":[{"meta":{"gmtoffset":19800},"timestamp":[1735789500,1735875900],
			"indicators":{"quote":[{"open":[23700,23900],"high":[24000,24100],"low":[23650,23800],"close":[23950.5,24004.75]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.FetchIndex(context.Background(), "^NSEI", "NIFTY 50", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "NIFTY 50", bars[0].Index)
	assert.Equal(t, "23950.50", bars[0].Close.StringFixed(2))
	assert.Equal(t, "24004.75", bars[1].Close.StringFixed(2))
}
