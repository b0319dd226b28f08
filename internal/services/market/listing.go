package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// sortExtractors resolves a listing sort key to a comparable value; nil sorts last.
var sortExtractors = map[string]func(r *models.StockRow) interface{}{
	"symbol":         func(r *models.StockRow) interface{} { return r.Symbol },
	"company_name":   func(r *models.StockRow) interface{} { return r.CompanyName },
	"close":          func(r *models.StockRow) interface{} { return r.Close },
	"change_pct":     func(r *models.StockRow) interface{} { return deref(r.ChangePct) },
	"volume":         func(r *models.StockRow) interface{} { return float64(r.Volume) },
	"date":           func(r *models.StockRow) interface{} { return float64(r.Date.Unix()) },
	"delivery_pct":   func(r *models.StockRow) interface{} { return r.DeliveryPct },
	"ytd_pct":        func(r *models.StockRow) interface{} { return deref(r.YTDPct) },
	"pct_1m":         func(r *models.StockRow) interface{} { return deref(r.Pct1M) },
	"pct_1y":         func(r *models.StockRow) interface{} { return deref(r.Pct1Y) },
	"delta_52w_high": func(r *models.StockRow) interface{} { return deref(r.Delta52WHigh) },
	"rs_rank":        func(r *models.StockRow) interface{} { return deref(r.RSRank) },
}

func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// SortKeys lists the accepted listing sort keys.
func SortKeys() []string {
	keys := make([]string, 0, len(sortExtractors))
	for k := range sortExtractors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeQuery validates and applies defaults to a listing query.
func normalizeQuery(query *models.StockListQuery) error {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = defaultPageLimit
	}
	if query.Limit > maxPageLimit {
		query.Limit = maxPageLimit
	}

	query.Sort = strings.ToLower(strings.TrimSpace(query.Sort))
	if query.Sort == "" {
		query.Sort = "symbol"
	}
	if _, ok := sortExtractors[query.Sort]; !ok {
		return common.NewInvalidParameter("unknown sort key %q (valid: %s)", query.Sort, strings.Join(SortKeys(), ", "))
	}

	query.Order = strings.ToLower(strings.TrimSpace(query.Order))
	if query.Order == "" {
		query.Order = "asc"
	}
	if query.Order != "asc" && query.Order != "desc" {
		return common.NewInvalidParameter("invalid sort order %q (must be asc or desc)", query.Order)
	}

	query.Search = strings.TrimSpace(query.Search)
	return nil
}

// ListStocks returns one page of the universe joined with derived metrics.
func (s *Service) ListStocks(ctx context.Context, query models.StockListQuery) (*models.StockPage, error) {
	if err := normalizeQuery(&query); err != nil {
		return nil, err
	}

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	needle := strings.ToLower(query.Search)
	rows := make([]models.StockRow, 0, len(snap.Series))
	for _, symbol := range snap.Symbols() {
		records := snap.Series[symbol]
		if len(records) == 0 {
			continue
		}
		company := snap.CompanyName(symbol)
		if needle != "" &&
			!strings.Contains(strings.ToLower(symbol), needle) &&
			!strings.Contains(strings.ToLower(company), needle) {
			continue
		}
		rows = append(rows, buildRow(symbol, company, records[len(records)-1], snap.Metrics[symbol]))
	}

	sortRows(rows, query.Sort, query.Order == "desc")

	total := len(rows)
	page := &models.StockPage{
		Total:      total,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: (total + query.Limit - 1) / query.Limit,
		Stocks:     []models.StockRow{},
	}

	offset := (query.Page - 1) * query.Limit
	if offset < total {
		end := offset + query.Limit
		if end > total {
			end = total
		}
		page.Stocks = rows[offset:end]
	}
	return page, nil
}

func buildRow(symbol, company string, latest models.OHLCVRecord, m *models.DerivedMetrics) models.StockRow {
	row := models.StockRow{
		Symbol:      symbol,
		CompanyName: company,
		Date:        latest.Date,
		Close:       latest.Close.InexactFloat64(),
		ChangePct:   latest.ChangePct(),
		Volume:      latest.Volume,
		DeliveryPct: latest.DeliveryPct.InexactFloat64(),
		Sparkline:   []float64{},
	}
	if m != nil {
		row.YTDPct = m.YTDPct
		row.Pct1M = m.Pct1M
		row.Pct1Y = m.Pct1Y
		row.Delta52WHigh = m.Delta52WHigh
		row.RSRank = m.RSRank
		row.AboveSMA20 = m.AboveSMA20
		row.AboveSMA50 = m.AboveSMA50
		row.AboveSMA200 = m.AboveSMA200
		if m.Sparkline != nil {
			row.Sparkline = m.Sparkline
		}
	}
	return row
}

// sortRows orders rows by key with nils last, breaking ties by symbol ascending.
func sortRows(rows []models.StockRow, key string, desc bool) {
	extract := sortExtractors[key]
	sort.SliceStable(rows, func(i, j int) bool {
		vi := extract(&rows[i])
		vj := extract(&rows[j])

		switch {
		case vi == nil && vj == nil:
		case vi == nil:
			return false
		case vj == nil:
			return true
		default:
			if cmp := compareValues(vi, vj); cmp != 0 {
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

// compareValues compares two non-nil values for sorting.
func compareValues(a, b interface{}) int {
	aNum, aOk := a.(float64)
	bNum, bOk := b.(float64)
	if aOk && bOk {
		if aNum < bNum {
			return -1
		}
		if aNum > bNum {
			return 1
		}
		return 0
	}

	aStr, aOk := a.(string)
	bStr, bOk := b.(string)
	if aOk && bOk {
		return strings.Compare(strings.ToLower(aStr), strings.ToLower(bStr))
	}
	return 0
}
