package models

import "time"

// ColumnType tags how a screen column is rendered by clients.
type ColumnType string

const (
	ColumnSymbol     ColumnType = "symbol"
	ColumnCurrency   ColumnType = "currency"
	ColumnPercent    ColumnType = "percent"
	ColumnStrength   ColumnType = "strength"
	ColumnMultiplier ColumnType = "multiplier"
	ColumnDate       ColumnType = "date"
	ColumnNumber     ColumnType = "number"
)

// PredicateKind enumerates the primitive screen predicates.
type PredicateKind string

const (
	// PredicateThreshold compares an operand with a constant.
	PredicateThreshold PredicateKind = "threshold"
	// PredicateCompare compares two non-constant operands (fields or window aggregates).
	PredicateCompare PredicateKind = "compare"
	// PredicateRank compares the operand's percentile rank (0-100) across the candidates with a constant.
	PredicateRank PredicateKind = "rank"
)

// Aggregate functions over a window of sessions.
const (
	AggMax = "max"
	AggMin = "min"
	AggAvg = "avg"
	AggSum = "sum"
)

// Operand resolves to a number (or text, for text fields) for one symbol.
//
// A plain Field reads the session Offset sessions before the latest one. With Agg set,
// the aggregate runs over Window sessions ending Offset sessions back, so Offset 1
// excludes the latest session. Scale multiplies the result; Per divides it.
type Operand struct {
	Field  string   `json:"field,omitempty" yaml:"field,omitempty"`
	Agg    string   `json:"agg,omitempty" yaml:"agg,omitempty"`
	Window int      `json:"window,omitempty" yaml:"window,omitempty"`
	Offset int      `json:"offset,omitempty" yaml:"offset,omitempty"`
	Const  *float64 `json:"const,omitempty" yaml:"const,omitempty"`
	Scale  float64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	Per    *Operand `json:"per,omitempty" yaml:"per,omitempty"`
}

// Predicate is one filter condition; a screen's predicates are ANDed.
type Predicate struct {
	Kind  PredicateKind `json:"kind" yaml:"kind"`
	Left  Operand       `json:"left" yaml:"left"`
	Op    string        `json:"op" yaml:"op"`
	Right Operand       `json:"right" yaml:"right"`
}

// Column is one output column: metadata plus the operand projected into each row.
type Column struct {
	Key   string     `json:"key" yaml:"key"`
	Label string     `json:"label" yaml:"label"`
	Type  ColumnType `json:"type" yaml:"type"`
	Value Operand    `json:"-" yaml:"value"`
	// Round is the number of decimals kept in output values; nil keeps full precision.
	Round *int `json:"-" yaml:"round,omitempty"`
}

// SortKey orders result rows by a column key.
type SortKey struct {
	Column string `json:"column" yaml:"column"`
	Desc   bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// ScreenDefinition is a named, declarative filter and projection over reconciled data.
type ScreenDefinition struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description" yaml:"description"`
	Filters     []Predicate `json:"-" yaml:"filters"`
	Columns     []Column    `json:"columns" yaml:"columns"`
	Sort        []SortKey   `json:"sort,omitempty" yaml:"sort,omitempty"`
}

// ScreenSummary is a catalog entry.
type ScreenSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ScreenColumn is the metadata half of a Column.
type ScreenColumn struct {
	Key   string     `json:"key"`
	Label string     `json:"label"`
	Type  ColumnType `json:"type"`
}

// ScreenRow maps column keys to values. Nil values mean "not available".
type ScreenRow map[string]interface{}

// ScreenResult is the output of one screen execution.
type ScreenResult struct {
	ScreenID string         `json:"screen_id"`
	Title    string         `json:"title"`
	Date     time.Time      `json:"date"`
	Count    int            `json:"count"`
	Columns  []ScreenColumn `json:"columns"`
	Rows     []ScreenRow    `json:"rows"`
}

// ScreenQuery carries caller-specified ordering for a screen run.
type ScreenQuery struct {
	Sort  string `json:"sort,omitempty"`
	Order string `json:"order,omitempty"` // "asc" or "desc"
}
