package screen

import "github.com/bobmcallan/fnoscreen/internal/models"

// Operand and column builders for the built-in catalog.

func places(n int) *int { return &n }

func field(name string) models.Operand {
	return models.Operand{Field: name}
}

func window(agg, name string, size, offset int) models.Operand {
	return models.Operand{Field: name, Agg: agg, Window: size, Offset: offset}
}

func scaled(op models.Operand, by float64) models.Operand {
	op.Scale = by
	return op
}

func ratio(numerator models.Operand, denominator models.Operand) models.Operand {
	numerator.Per = &denominator
	return numerator
}

func threshold(left models.Operand, op string, v float64) models.Predicate {
	return models.Predicate{Kind: models.PredicateThreshold, Left: left, Op: op, Right: models.Operand{Const: ptr(v)}}
}

func compare(left models.Operand, op string, right models.Operand) models.Predicate {
	return models.Predicate{Kind: models.PredicateCompare, Left: left, Op: op, Right: right}
}

func rank(left models.Operand, op string, v float64) models.Predicate {
	return models.Predicate{Kind: models.PredicateRank, Left: left, Op: op, Right: models.Operand{Const: ptr(v)}}
}

var (
	symbolColumn   = models.Column{Key: "symbol", Label: "Symbol", Type: models.ColumnSymbol, Value: field("symbol")}
	priceColumn    = models.Column{Key: "close", Label: "Price", Type: models.ColumnCurrency, Value: field("close"), Round: places(2)}
	deliveryColumn = models.Column{Key: "deliveryPct", Label: "Delivery %", Type: models.ColumnPercent, Value: field("delivery_pct"), Round: places(2)}
	dateColumn     = models.Column{Key: "date", Label: "Date", Type: models.ColumnDate, Value: field("date")}
)

func changeColumn(source string) models.Column {
	return models.Column{Key: "changePct", Label: "Change %", Type: models.ColumnPercent, Value: field(source), Round: places(2)}
}

func multipleColumn(volume string, size int) models.Column {
	return models.Column{
		Key:   "volumeMult",
		Label: "Vol Multiple",
		Type:  models.ColumnMultiplier,
		Value: ratio(field(volume), window(models.AggAvg, volume, size, 1)),
		Round: places(2),
	}
}

func strengthColumn(source string) models.Column {
	return models.Column{Key: "strength", Label: "Strength", Type: models.ColumnStrength, Value: field(source)}
}

// volumeSpike is a 20 session high breakout on a bullish candle with volume above
// twice its 50 session average and above its 10 session max.
func volumeSpike(id, title, description, volume string, order []models.SortKey) models.ScreenDefinition {
	return models.ScreenDefinition{
		ID:          id,
		Title:       title,
		Description: description,
		Filters: []models.Predicate{
			compare(field("close"), ">", window(models.AggMax, "high", 20, 1)),
			compare(field(volume), ">", scaled(window(models.AggAvg, volume, 50, 1), 2)),
			compare(field(volume), ">", window(models.AggMax, volume, 10, 1)),
			compare(field("close"), ">", field("open")),
			threshold(field("close"), ">", 20),
		},
		Columns: []models.Column{
			symbolColumn,
			priceColumn,
			changeColumn("candle_pct"),
			multipleColumn(volume, 50),
			deliveryColumn,
			dateColumn,
		},
		Sort: order,
	}
}

// rangeBreak is a close beyond the prior 20 session high (up) or low (down), graded by strength.
func rangeBreak(id, title, description string, up bool, volume, strength string) models.ScreenDefinition {
	filter := compare(field("close"), ">", window(models.AggMax, "high", 20, 1))
	if !up {
		filter = compare(field("close"), "<", window(models.AggMin, "low", 20, 1))
	}
	return models.ScreenDefinition{
		ID:          id,
		Title:       title,
		Description: description,
		Filters:     []models.Predicate{filter},
		Columns: []models.Column{
			symbolColumn,
			priceColumn,
			changeColumn("change_pct"),
			strengthColumn(strength),
			multipleColumn(volume, 20),
			deliveryColumn,
			dateColumn,
		},
		Sort: []models.SortKey{{Column: "strength"}, {Column: "volumeMult", Desc: true}},
	}
}

// Builtins returns the standard screen catalog in display order.
func Builtins() []models.ScreenDefinition {
	return []models.ScreenDefinition{
		volumeSpike("volume-breakout", "Volume Breakout",
			"20 day high breakout on a bullish candle with volume above twice its 50 day average and its 10 day max.",
			"volume", []models.SortKey{{Column: "volume", Desc: true}}),
		rangeBreak("upward-breakout", "Upward Breakout",
			"Close above the prior 20 day high, graded by size against ATR and volume against the 20 day average.",
			true, "volume", "breakout_strength"),
		rangeBreak("downward-breakout", "Downward Breakout",
			"Close below the prior 20 day low, graded by size against ATR and volume against the 20 day average.",
			false, "volume", "breakdown_strength"),
		volumeSpike("volume-breakout-delivery", "Volume Breakout (Delivery)",
			"Volume breakout confirmed by delivered quantity instead of traded volume.",
			"delivery_volume", []models.SortKey{{Column: "volumeMult", Desc: true}}),
		rangeBreak("upward-breakout-delivery", "Upward Breakout (Delivery)",
			"Close above the prior 20 day high, graded on delivered quantity.",
			true, "delivery_volume", "delivery_breakout_strength"),
		rangeBreak("downward-breakout-delivery", "Downward Breakout (Delivery)",
			"Close below the prior 20 day low, graded on delivered quantity.",
			false, "delivery_volume", "delivery_breakdown_strength"),
		{
			ID:          "relative-weakness",
			Title:       "Relative Weakness",
			Description: "Underperforming the benchmark by 1.2% or more, closing in the bottom 30% of the range on heavy delivery.",
			Filters: []models.Predicate{
				threshold(field("relative_return"), "<=", -1.2),
				threshold(field("close_location"), "<=", 0.30),
				compare(field("delivery_volume"), ">=", scaled(window(models.AggAvg, "delivery_volume", 20, 1), 1.5)),
				threshold(field("close"), ">", 20),
			},
			Columns: []models.Column{
				symbolColumn,
				priceColumn,
				changeColumn("change_pct"),
				{Key: "relativeReturn", Label: "Relative Return", Type: models.ColumnPercent, Value: field("relative_return"), Round: places(2)},
				{Key: "closeLocation", Label: "Close Loc %", Type: models.ColumnPercent, Value: scaled(field("close_location"), 100), Round: places(1)},
				{Key: "deliveryMult", Label: "Del Vol Multiple", Type: models.ColumnMultiplier,
					Value: ratio(field("delivery_volume"), window(models.AggAvg, "delivery_volume", 20, 1)), Round: places(2)},
				deliveryColumn,
				dateColumn,
			},
			Sort: []models.SortKey{{Column: "relativeReturn"}, {Column: "deliveryMult", Desc: true}},
		},
		{
			ID:          "new-high",
			Title:       "52 Week High",
			Description: "Latest close equals the highest close of the trailing 252 sessions.",
			Filters: []models.Predicate{
				threshold(field("delta_52w_high"), ">=", 0),
			},
			Columns: []models.Column{
				symbolColumn,
				priceColumn,
				changeColumn("change_pct"),
				{Key: "high52w", Label: "52W High", Type: models.ColumnCurrency, Value: field("high_52w"), Round: places(2)},
				{Key: "pct1y", Label: "1Y %", Type: models.ColumnPercent, Value: field("pct_1y"), Round: places(2)},
				dateColumn,
			},
			Sort: []models.SortKey{{Column: "pct1y", Desc: true}},
		},
		{
			ID:          "rs-leaders",
			Title:       "Relative Strength Leaders",
			Description: "One year return in the top fifth of the universe while trading above the 50 day average.",
			Filters: []models.Predicate{
				threshold(field("rs_rank"), ">=", 80),
				compare(field("close"), ">", field("sma_50")),
			},
			Columns: []models.Column{
				symbolColumn,
				priceColumn,
				changeColumn("change_pct"),
				{Key: "rsRank", Label: "RS Rank", Type: models.ColumnNumber, Value: field("rs_rank"), Round: places(0)},
				{Key: "pct1y", Label: "1Y %", Type: models.ColumnPercent, Value: field("pct_1y"), Round: places(2)},
				dateColumn,
			},
			Sort: []models.SortKey{{Column: "rsRank", Desc: true}},
		},
	}
}
