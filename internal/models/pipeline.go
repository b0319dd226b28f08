package models

import "time"

// SymbolFailure records why a symbol did not complete.
type SymbolFailure struct {
	Symbol   string `json:"symbol"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// CollectSummary is the outcome of one collection batch.
type CollectSummary struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Succeeded   []string        `json:"succeeded"`
	Skipped     []string        `json:"skipped"`
	Failed      []SymbolFailure `json:"failed"`
	Records     int             `json:"records"`
	Rejected    int             `json:"rejected"` // source rows dropped by boundary validation
	Diagnostics []string        `json:"diagnostics,omitempty"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// FailedSymbols returns the symbols of Failed in order.
func (s *CollectSummary) FailedSymbols() []string {
	out := make([]string, len(s.Failed))
	for i, f := range s.Failed {
		out[i] = f.Symbol
	}
	return out
}

// Mismatch is the first prevClose discontinuity found for a symbol.
type Mismatch struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	PrevClose     float64   `json:"prev_close"`
	PriorClose    float64   `json:"prior_close"`
	Discrepancies int       `json:"discrepancies"`
}

// FlaggedSet is the per-run set of symbols needing adjustment. It is never persisted.
type FlaggedSet map[string]Mismatch

// Symbols returns the flagged symbols; order carries no meaning.
func (f FlaggedSet) Symbols() []string {
	out := make([]string, 0, len(f))
	for s := range f {
		out = append(out, s)
	}
	return out
}

// Has reports whether symbol is flagged.
func (f FlaggedSet) Has(symbol string) bool {
	_, ok := f[symbol]
	return ok
}

// AdjustSummary is the outcome of one adjustment pass.
type AdjustSummary struct {
	Adjusted    []string       `json:"adjusted"`
	Unavailable []string       `json:"unavailable"` // secondary source failed or had no data
	Unresolved  []string       `json:"unresolved"`  // fetched but no stored rows matched
	RowsPatched int            `json:"rows_patched"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
	PerSymbol   map[string]int `json:"per_symbol,omitempty"`
}

// RunReport is the full record of one collect-and-reconcile run.
type RunReport struct {
	RunID      string          `json:"run_id"`
	Mode       string          `json:"mode"` // "all" or "one"
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Universe   int             `json:"universe"`
	Collect    *CollectSummary `json:"collect"`
	Flagged    []Mismatch      `json:"flagged,omitempty"`
	Adjust     *AdjustSummary  `json:"adjust,omitempty"`
	Benchmark  int             `json:"benchmark_bars"`
	Warnings   []string        `json:"warnings,omitempty"`
}
