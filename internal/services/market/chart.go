package market

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/signals"
)

// RenderSparkline renders the trailing-year closes of a symbol as a PNG line chart.
func (s *Service) RenderSparkline(ctx context.Context, symbol string) ([]byte, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	records, ok := snap.Series[symbol]
	if !ok || len(records) == 0 {
		return nil, common.NewStockNotFound(symbol)
	}
	if len(records) > signals.SessionsPerYear {
		records = records[len(records)-signals.SessionsPerYear:]
	}
	if len(records) < 2 {
		return nil, common.NewInvalidParameter("%s has %d sessions, need at least 2 to chart", symbol, len(records))
	}

	return RenderCloseChart(symbol, records)
}

// RenderCloseChart draws closes over time: green when the period closed up, red otherwise.
// Returns raw PNG bytes.
func RenderCloseChart(symbol string, records []models.OHLCVRecord) ([]byte, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(records))
	}

	xValues := make([]time.Time, len(records))
	yValues := make([]float64, len(records))
	for i, r := range records {
		xValues[i] = r.Date
		yValues[i] = r.Close.InexactFloat64()
	}

	color := drawing.ColorFromHex("16a34a") // green-600
	if yValues[len(yValues)-1] < yValues[0] {
		color = drawing.ColorFromHex("dc2626") // red-600
	}

	graph := chart.Chart{
		Title:  symbol,
		Width:  600,
		Height: 200,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "Close",
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 2,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
