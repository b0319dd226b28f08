package screen

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/services/snapshot"
	"github.com/bobmcallan/fnoscreen/internal/signals"
)

var validOps = map[string]bool{">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true}

// Engine validates screen definitions and runs them against a snapshot.
type Engine struct {
	registry *FieldRegistry
}

// NewEngine creates an Engine over the standard field registry.
func NewEngine() *Engine {
	return &Engine{registry: NewFieldRegistry()}
}

// Fields exposes the registry so callers can list available fields.
func (e *Engine) Fields() *FieldRegistry {
	return e.registry
}

// --- Validation ---

// Validate checks a definition against the field registry.
func (e *Engine) Validate(def *models.ScreenDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("screen id is required")
	}
	if def.Title == "" {
		return fmt.Errorf("screen %s: title is required", def.ID)
	}
	if len(def.Columns) == 0 {
		return fmt.Errorf("screen %s: at least one column is required", def.ID)
	}

	for i, p := range def.Filters {
		if err := e.validatePredicate(p); err != nil {
			return fmt.Errorf("screen %s: filter %d: %w", def.ID, i, err)
		}
	}

	keys := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		if col.Key == "" {
			return fmt.Errorf("screen %s: column key is required", def.ID)
		}
		if keys[col.Key] {
			return fmt.Errorf("screen %s: duplicate column %s", def.ID, col.Key)
		}
		keys[col.Key] = true
		if col.Round != nil && (*col.Round < 0 || *col.Round > 8) {
			return fmt.Errorf("screen %s: column %s: round must be between 0 and 8", def.ID, col.Key)
		}
		if err := e.validateOperand(col.Value, true); err != nil {
			return fmt.Errorf("screen %s: column %s: %w", def.ID, col.Key, err)
		}
	}

	for _, sk := range def.Sort {
		if keys[sk.Column] {
			continue
		}
		entry := e.registry.Get(sk.Column)
		if entry == nil || entry.kind == fieldText {
			return fmt.Errorf("screen %s: sort %s is neither a column nor a numeric field", def.ID, sk.Column)
		}
	}
	return nil
}

func (e *Engine) validatePredicate(p models.Predicate) error {
	if !validOps[p.Op] {
		return fmt.Errorf("invalid operator %q", p.Op)
	}
	if p.Left.Const != nil {
		return fmt.Errorf("left operand must not be a constant")
	}
	if err := e.validateOperand(p.Left, false); err != nil {
		return fmt.Errorf("left: %w", err)
	}

	switch p.Kind {
	case models.PredicateThreshold, models.PredicateRank:
		if p.Right.Const == nil {
			return fmt.Errorf("%s predicate needs a constant right operand", p.Kind)
		}
	case models.PredicateCompare:
		if p.Right.Const != nil {
			return fmt.Errorf("compare predicate needs a field or aggregate right operand")
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}

	if err := e.validateOperand(p.Right, false); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	return nil
}

func (e *Engine) validateOperand(op models.Operand, allowText bool) error {
	if op.Const != nil {
		if op.Field != "" || op.Agg != "" || op.Per != nil {
			return fmt.Errorf("constant operand must not name a field, aggregate or denominator")
		}
		return nil
	}
	if op.Field == "" {
		return fmt.Errorf("operand needs a field or a constant")
	}
	entry := e.registry.Get(op.Field)
	if entry == nil {
		return fmt.Errorf("unknown field: %s", op.Field)
	}
	if op.Offset < 0 {
		return fmt.Errorf("field %s: offset must not be negative", op.Field)
	}

	switch entry.kind {
	case fieldText:
		if !allowText {
			return fmt.Errorf("text field %s cannot be compared", op.Field)
		}
		if op.Agg != "" || op.Offset != 0 || op.Scale != 0 || op.Per != nil {
			return fmt.Errorf("text field %s takes no aggregate, offset, scale or denominator", op.Field)
		}
		return nil
	case fieldMetric:
		if op.Agg != "" || op.Offset != 0 {
			return fmt.Errorf("metric %s is only available on the latest session", op.Field)
		}
	case fieldSession:
		if op.Agg != "" {
			switch op.Agg {
			case models.AggMax, models.AggMin, models.AggAvg, models.AggSum:
			default:
				return fmt.Errorf("unknown aggregate %q", op.Agg)
			}
			if op.Window < 1 {
				return fmt.Errorf("aggregate %s(%s) needs a window of at least 1", op.Agg, op.Field)
			}
		}
	}

	if op.Agg == "" && op.Window != 0 {
		return fmt.Errorf("field %s: window requires an aggregate", op.Field)
	}
	if op.Per != nil {
		if err := e.validateOperand(*op.Per, false); err != nil {
			return fmt.Errorf("denominator: %w", err)
		}
	}
	return nil
}

// --- Evaluation ---

// sessionValue reads a session field offset sessions before the latest.
func sessionValue(s *subject, extract sessionExtractor, offset int) *float64 {
	i := s.last() - offset
	if i < 0 {
		return nil
	}
	return extract(s, i)
}

// aggregate folds window sessions ending offset sessions before the latest.
// Windows that reach before the first stored session use what is available;
// a window with no sessions at all is nil.
func aggregate(s *subject, extract sessionExtractor, agg string, window, offset int) *float64 {
	end := s.last() - offset
	if end < 0 || window < 1 {
		return nil
	}
	start := end - window + 1
	if start < 0 {
		start = 0
	}

	var acc float64
	n := 0
	for i := start; i <= end; i++ {
		v := extract(s, i)
		if v == nil {
			continue
		}
		switch {
		case n == 0:
			acc = *v
		case agg == models.AggMax:
			acc = math.Max(acc, *v)
		case agg == models.AggMin:
			acc = math.Min(acc, *v)
		default:
			acc += *v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	if agg == models.AggAvg {
		acc /= float64(n)
	}
	return &acc
}

// evaluate resolves a numeric operand for one subject. Nil means unavailable.
func (e *Engine) evaluate(s *subject, op models.Operand) *float64 {
	var v *float64
	switch {
	case op.Const != nil:
		v = ptr(*op.Const)
	default:
		entry := e.registry.Get(op.Field)
		if entry == nil {
			return nil
		}
		switch entry.kind {
		case fieldSession:
			if op.Agg != "" {
				v = aggregate(s, entry.session, op.Agg, op.Window, op.Offset)
			} else {
				v = sessionValue(s, entry.session, op.Offset)
			}
		case fieldMetric:
			v = entry.metric(s)
		default:
			return nil
		}
	}
	if v == nil {
		return nil
	}

	out := *v
	if op.Scale != 0 {
		out *= op.Scale
	}
	if op.Per != nil {
		d := e.evaluate(s, *op.Per)
		if d == nil || *d == 0 {
			return nil
		}
		out /= *d
	}
	return &out
}

// project resolves a column value: text for text fields, a rounded number otherwise.
func (e *Engine) project(s *subject, col models.Column) interface{} {
	if col.Value.Field != "" {
		if entry := e.registry.Get(col.Value.Field); entry != nil && entry.kind == fieldText {
			return entry.text(s)
		}
	}
	v := e.evaluate(s, col.Value)
	if v == nil {
		return nil
	}
	if col.Round != nil {
		return round(*v, *col.Round)
	}
	return *v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func compareOp(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

// --- Execution ---

// sortSpec is one resolved ordering key: a column key or a numeric registry field.
type sortSpec struct {
	key   string
	desc  bool
	field bool
}

type matched struct {
	subject *subject
	row     models.ScreenRow
	extra   map[string]interface{}
}

// Run executes def over snap. Sort keys are assumed validated.
func (e *Engine) Run(def *models.ScreenDefinition, snap *snapshot.Snapshot, sortKeys []models.SortKey) *models.ScreenResult {
	candidates := e.candidates(snap)
	ranks := e.rankPredicates(def, candidates)

	columnKeys := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		columnKeys[col.Key] = true
	}
	specs := make([]sortSpec, 0, len(sortKeys))
	for _, sk := range sortKeys {
		specs = append(specs, sortSpec{key: sk.Column, desc: sk.Desc, field: !columnKeys[sk.Column]})
	}

	var rows []matched
	for _, s := range candidates {
		if !e.matches(def, s, ranks) {
			continue
		}
		m := matched{subject: s, row: make(models.ScreenRow, len(def.Columns))}
		for _, col := range def.Columns {
			m.row[col.Key] = e.project(s, col)
		}
		for _, spec := range specs {
			if spec.field {
				if m.extra == nil {
					m.extra = make(map[string]interface{})
				}
				if v := e.evaluate(s, models.Operand{Field: spec.key}); v != nil {
					m.extra[spec.key] = *v
				}
			}
		}
		rows = append(rows, m)
	}

	sortMatched(rows, specs)

	result := &models.ScreenResult{
		ScreenID: def.ID,
		Title:    def.Title,
		Date:     snap.LatestDate,
		Count:    len(rows),
		Columns:  make([]models.ScreenColumn, 0, len(def.Columns)),
		Rows:     make([]models.ScreenRow, 0, len(rows)),
	}
	for _, col := range def.Columns {
		result.Columns = append(result.Columns, models.ScreenColumn{Key: col.Key, Label: col.Label, Type: col.Type})
	}
	for _, m := range rows {
		result.Rows = append(result.Rows, m.row)
	}
	return result
}

// candidates are the symbols whose latest record falls on the snapshot's latest date.
func (e *Engine) candidates(snap *snapshot.Snapshot) []*subject {
	var out []*subject
	for _, symbol := range snap.Symbols() {
		records := snap.Series[symbol]
		if len(records) == 0 || !records[len(records)-1].Date.Equal(snap.LatestDate) {
			continue
		}
		out = append(out, &subject{
			symbol:    symbol,
			company:   snap.CompanyName(symbol),
			records:   records,
			metrics:   snap.Metrics[symbol],
			benchmark: snap.BenchmarkChange(snap.LatestDate),
		})
	}
	return out
}

// rankPredicates precomputes percentile ranks across the candidates for each rank filter.
func (e *Engine) rankPredicates(def *models.ScreenDefinition, candidates []*subject) map[int]map[string]float64 {
	ranks := make(map[int]map[string]float64)
	for i, p := range def.Filters {
		if p.Kind != models.PredicateRank {
			continue
		}
		values := make(map[string]float64)
		for _, s := range candidates {
			if v := e.evaluate(s, p.Left); v != nil {
				values[s.symbol] = *v
			}
		}
		ranks[i] = signals.PercentileRanks(values)
	}
	return ranks
}

func (e *Engine) matches(def *models.ScreenDefinition, s *subject, ranks map[int]map[string]float64) bool {
	for i, p := range def.Filters {
		var left *float64
		if p.Kind == models.PredicateRank {
			if r, ok := ranks[i][s.symbol]; ok {
				left = &r
			}
		} else {
			left = e.evaluate(s, p.Left)
		}
		right := e.evaluate(s, p.Right)
		if left == nil || right == nil {
			return false
		}
		if !compareOp(p.Op, *left, *right) {
			return false
		}
	}
	return true
}

func (m matched) value(spec sortSpec) interface{} {
	if spec.field {
		return m.extra[spec.key]
	}
	return m.row[spec.key]
}

// sortMatched orders rows by specs with nils last, then by symbol ascending.
func sortMatched(rows []matched, specs []sortSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, spec := range specs {
			vi := rows[i].value(spec)
			vj := rows[j].value(spec)

			if vi == nil && vj == nil {
				continue
			}
			if vi == nil {
				return false
			}
			if vj == nil {
				return true
			}

			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if spec.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return rows[i].subject.symbol < rows[j].subject.symbol
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
