package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// PrimarySource is the unadjusted feed (NSE archive).
type PrimarySource interface {
	// FetchHistory returns validated daily records for symbol in [from, to] and the
	// number of source rows rejected by validation. Errors are
	// *common.TransientFetchError or *common.PermanentFetchError.
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.OHLCVRecord, int, error)

	// FetchUniverse lists the members of an index.
	FetchUniverse(ctx context.Context, index string) ([]models.Stock, error)
}

// SecondarySource is the adjusted feed (Yahoo Finance).
type SecondarySource interface {
	// SourceSymbol maps an internal symbol to the source's naming.
	SourceSymbol(symbol string) string

	// FetchAdjusted returns adjusted close and volume per trading date from `from` onwards.
	FetchAdjusted(ctx context.Context, symbol string, from time.Time) ([]models.AdjustedBar, error)

	// FetchIndex returns daily bars for a benchmark index ticker.
	FetchIndex(ctx context.Context, ticker, name string, from time.Time) ([]models.IndexBar, error)
}
