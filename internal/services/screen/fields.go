package screen

import (
	"sort"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/signals"
)

// Breakout strength labels. They sort in order of conviction.
const (
	StrengthFull       = "Full"
	StrengthLowVolume  = "Partial (Low Volume)"
	StrengthSmallSize  = "Partial (Small Size)"
	breakoutWindow     = 20
	breakoutVolumeMult = 1.5
)

// subject is one candidate symbol with everything an operand can read.
type subject struct {
	symbol    string
	company   string
	records   []models.OHLCVRecord // ascending
	metrics   *models.DerivedMetrics
	benchmark float64 // benchmark change on the latest session
}

func (s *subject) last() int {
	return len(s.records) - 1
}

type fieldKind int

const (
	fieldSession fieldKind = iota // per-session value, readable at an offset and aggregatable
	fieldMetric                   // latest-session derived metric
	fieldText                     // projection only
)

// sessionExtractor reads a value from the session at index i. Returns nil when unavailable.
type sessionExtractor func(s *subject, i int) *float64

// metricExtractor reads a latest-session value.
type metricExtractor func(s *subject) *float64

// textExtractor reads a non-numeric projection.
type textExtractor func(s *subject) interface{}

// fieldEntry is the registry entry for a screen field.
type fieldEntry struct {
	name        string
	description string
	kind        fieldKind
	session     sessionExtractor
	metric      metricExtractor
	text        textExtractor
}

// FieldRegistry holds all fields screens may reference.
type FieldRegistry struct {
	fields map[string]*fieldEntry
}

// NewFieldRegistry creates and populates the field registry.
func NewFieldRegistry() *FieldRegistry {
	r := &FieldRegistry{fields: make(map[string]*fieldEntry)}
	r.registerSession()
	r.registerMetrics()
	r.registerText()
	return r
}

// Get returns the registry entry for a field, or nil if not found.
func (r *FieldRegistry) Get(name string) *fieldEntry {
	return r.fields[name]
}

// Names returns every registered field name, sorted.
func (r *FieldRegistry) Names() []string {
	out := make([]string, 0, len(r.fields))
	for name := range r.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *FieldRegistry) add(e *fieldEntry) {
	r.fields[e.name] = e
}

func ptr(v float64) *float64 {
	return &v
}

// --- Session fields ---

// barField adapts a per-record getter into a session extractor.
func barField(get func(models.OHLCVRecord) float64) sessionExtractor {
	return func(s *subject, i int) *float64 { return ptr(get(s.records[i])) }
}

var (
	sessionHigh           = barField(func(r models.OHLCVRecord) float64 { return r.High.InexactFloat64() })
	sessionLow            = barField(func(r models.OHLCVRecord) float64 { return r.Low.InexactFloat64() })
	sessionVolume         = barField(func(r models.OHLCVRecord) float64 { return float64(r.Volume) })
	sessionDeliveryVolume = barField(func(r models.OHLCVRecord) float64 { return float64(r.DeliveryVolume) })
)

func (r *FieldRegistry) registerSession() {
	session := func(name, desc string, extract sessionExtractor) {
		r.add(&fieldEntry{name: name, description: desc, kind: fieldSession, session: extract})
	}

	session("open", "Session open", barField(func(rec models.OHLCVRecord) float64 { return rec.Open.InexactFloat64() }))
	session("high", "Session high", sessionHigh)
	session("low", "Session low", sessionLow)
	session("close", "Session close", barField(func(rec models.OHLCVRecord) float64 { return rec.Close.InexactFloat64() }))
	session("prev_close", "Previous close as reported by the primary source", barField(func(rec models.OHLCVRecord) float64 { return rec.PrevClose.InexactFloat64() }))
	session("volume", "Traded quantity", sessionVolume)
	session("value", "Turnover", barField(func(rec models.OHLCVRecord) float64 { return rec.Value.InexactFloat64() }))
	session("vwap", "Volume weighted average price", barField(func(rec models.OHLCVRecord) float64 { return rec.VWAP.InexactFloat64() }))
	session("trades", "Number of trades", barField(func(rec models.OHLCVRecord) float64 { return float64(rec.Trades) }))
	session("delivery_volume", "Delivered quantity", sessionDeliveryVolume)
	session("delivery_pct", "Delivered quantity as percent of traded", barField(func(rec models.OHLCVRecord) float64 { return rec.DeliveryPct.InexactFloat64() }))
	session("close_location", "Close position in the session range, 0 at low to 1 at high", barField(signals.CloseLocation))

	session("change_pct", "Change percent against prevClose", func(s *subject, i int) *float64 {
		return s.records[i].ChangePct()
	})
	session("candle_pct", "Close against open, percent", func(s *subject, i int) *float64 {
		return signals.CandlePct(s.records[i])
	})
	session("true_range", "True range against the previous stored close", func(s *subject, i int) *float64 {
		if i == 0 {
			return nil
		}
		return ptr(signals.TrueRange(s.records[i], s.records[i-1].Close.InexactFloat64()))
	})
}

// --- Derived metrics ---

func (r *FieldRegistry) registerMetrics() {
	metric := func(name, desc string, get func(*models.DerivedMetrics) *float64) {
		r.add(&fieldEntry{name: name, description: desc, kind: fieldMetric,
			metric: func(s *subject) *float64 {
				if s.metrics == nil {
					return nil
				}
				return get(s.metrics)
			}})
	}

	metric("ytd_pct", "Return since the last close of the previous year", func(m *models.DerivedMetrics) *float64 { return m.YTDPct })
	metric("pct_1m", "One month return", func(m *models.DerivedMetrics) *float64 { return m.Pct1M })
	metric("pct_1y", "One year return", func(m *models.DerivedMetrics) *float64 { return m.Pct1Y })
	metric("sma_20", "20 session simple moving average", func(m *models.DerivedMetrics) *float64 { return m.SMA20 })
	metric("sma_50", "50 session simple moving average", func(m *models.DerivedMetrics) *float64 { return m.SMA50 })
	metric("sma_200", "200 session simple moving average", func(m *models.DerivedMetrics) *float64 { return m.SMA200 })
	metric("high_52w", "Highest close over 252 sessions", func(m *models.DerivedMetrics) *float64 { return m.High52W })
	metric("delta_52w_high", "Distance below the 52 week high, percent", func(m *models.DerivedMetrics) *float64 { return m.Delta52WHigh })
	metric("atr_14", "14 session average true range", func(m *models.DerivedMetrics) *float64 { return m.ATR14 })
	metric("rs_rank", "Percentile of the one year return across the universe", func(m *models.DerivedMetrics) *float64 { return m.RSRank })

	r.add(&fieldEntry{name: "benchmark_change_pct", description: "Benchmark index change on the latest session", kind: fieldMetric,
		metric: func(s *subject) *float64 { return ptr(s.benchmark) }})
	r.add(&fieldEntry{name: "relative_return", description: "Change percent minus the benchmark change", kind: fieldMetric,
		metric: func(s *subject) *float64 {
			change := s.records[s.last()].ChangePct()
			if change == nil {
				change = ptr(0)
			}
			return ptr(*change - s.benchmark)
		}})
}

// --- Text fields ---

func (r *FieldRegistry) registerText() {
	r.add(&fieldEntry{name: "symbol", description: "Exchange symbol", kind: fieldText,
		text: func(s *subject) interface{} { return s.symbol }})
	r.add(&fieldEntry{name: "company_name", description: "Company name", kind: fieldText,
		text: func(s *subject) interface{} { return s.company }})
	r.add(&fieldEntry{name: "date", description: "Latest session date", kind: fieldText,
		text: func(s *subject) interface{} { return s.records[s.last()].Date.Format(common.DateLayout) }})

	r.add(&fieldEntry{name: "breakout_strength", description: "Upward breakout strength on traded volume", kind: fieldText,
		text: func(s *subject) interface{} { return breakoutStrength(s, true, sessionVolume) }})
	r.add(&fieldEntry{name: "breakdown_strength", description: "Downward breakout strength on traded volume", kind: fieldText,
		text: func(s *subject) interface{} { return breakoutStrength(s, false, sessionVolume) }})
	r.add(&fieldEntry{name: "delivery_breakout_strength", description: "Upward breakout strength on delivered volume", kind: fieldText,
		text: func(s *subject) interface{} { return breakoutStrength(s, true, sessionDeliveryVolume) }})
	r.add(&fieldEntry{name: "delivery_breakdown_strength", description: "Downward breakout strength on delivered volume", kind: fieldText,
		text: func(s *subject) interface{} { return breakoutStrength(s, false, sessionDeliveryVolume) }})
}

// breakoutStrength grades a 20 session breakout by its size against ATR14 and its
// volume against the 20 session average, both windows excluding the latest session.
func breakoutStrength(s *subject, up bool, volume sessionExtractor) string {
	var size *float64
	close := s.records[s.last()].Close.InexactFloat64()
	if up {
		if high := aggregate(s, sessionHigh, models.AggMax, breakoutWindow, 1); high != nil {
			size = ptr(close - *high)
		}
	} else {
		if low := aggregate(s, sessionLow, models.AggMin, breakoutWindow, 1); low != nil {
			size = ptr(*low - close)
		}
	}

	if size == nil || s.metrics == nil || s.metrics.ATR14 == nil || *size <= *s.metrics.ATR14 {
		return StrengthSmallSize
	}

	current := volume(s, s.last())
	avg := aggregate(s, volume, models.AggAvg, breakoutWindow, 1)
	if current != nil && avg != nil && *current > *avg*breakoutVolumeMult {
		return StrengthFull
	}
	return StrengthLowVolume
}
