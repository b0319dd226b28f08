package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fnoscreen/internal/app"
	"github.com/bobmcallan/fnoscreen/internal/server"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	config := `
[storage]
backend = "sqlite"
path = "` + filepath.Join(dir, "stocks.db") + `"

[logging]
level = "error"
outputs = ["console"]
`
	path := filepath.Join(dir, "fnoscreen.toml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))
	return path
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"explode"}},
		{"collect-one without symbol", []string{"collect-one"}},
		{"stats with argument", []string{"stats", "SBIN"}},
		{"bad flag", []string{"-nope", "stats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, run(tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "fnoscreen")
}

func TestRun_StatsOnEmptyStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", writeTestConfig(t), "stats"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["symbol_count"])
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\nworkers = 0\n"), 0644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"-config", path, "stats"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "workers")
}

// testServer creates an httptest.Server with the full handler stack over a fresh store.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := app.NewApp(writeTestConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ts := httptest.NewServer(server.NewServer(a).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_EndToEnd(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/api/screens")
	require.NoError(t, err)
	var list struct {
		Screens []struct {
			ID string `json:"id"`
		} `json:"screens"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.NotEmpty(t, list.Screens)
	assert.Equal(t, "volume-breakout", list.Screens[0].ID)

	// Empty store: screens run to an empty result, stocks page is empty
	resp, err = http.Get(ts.URL + "/api/screens/new-high")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/stocks?limit=10")
	require.NoError(t, err)
	var page struct {
		Stocks []interface{} `json:"stocks"`
		Total  int           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	resp.Body.Close()
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Stocks)

	resp, err = http.Get(ts.URL + "/api/stocks/NOSUCH")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/screens/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
