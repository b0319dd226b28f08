package interfaces

import (
	"context"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// ScreenService executes declarative screens.
type ScreenService interface {
	ListScreens() []models.ScreenSummary
	GetScreen(id string) (*models.ScreenDefinition, error)
	RunScreen(ctx context.Context, id string, query models.ScreenQuery) (*models.ScreenResult, error)
}

// MarketService is the read-side query surface.
type MarketService interface {
	ListStocks(ctx context.Context, query models.StockListQuery) (*models.StockPage, error)
	GetStock(ctx context.Context, symbol string, days int) (*models.StockDetail, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
	RenderSparkline(ctx context.Context, symbol string) ([]byte, error)
	Invalidate()
}

// PipelineService runs collection and reconciliation.
type PipelineService interface {
	CollectAll(ctx context.Context) (*models.RunReport, error)
	CollectOne(ctx context.Context, symbol string) (*models.RunReport, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
}

// PipelineRunner launches full runs in the background.
type PipelineRunner interface {
	Trigger(source string) bool
	Running() bool
	LastReport() *models.RunReport
	Stop()
}
