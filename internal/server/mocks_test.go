package server

import (
	"context"
	"errors"

	"github.com/bobmcallan/fnoscreen/internal/app"
	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

var errNotImplemented = errors.New("not implemented")

type mockScreenService struct {
	listScreens func() []models.ScreenSummary
	getScreen   func(id string) (*models.ScreenDefinition, error)
	runScreen   func(ctx context.Context, id string, query models.ScreenQuery) (*models.ScreenResult, error)
}

func (m *mockScreenService) ListScreens() []models.ScreenSummary {
	if m.listScreens != nil {
		return m.listScreens()
	}
	return nil
}

func (m *mockScreenService) GetScreen(id string) (*models.ScreenDefinition, error) {
	if m.getScreen != nil {
		return m.getScreen(id)
	}
	return nil, common.NewScreenNotFound(id)
}

func (m *mockScreenService) RunScreen(ctx context.Context, id string, query models.ScreenQuery) (*models.ScreenResult, error) {
	if m.runScreen != nil {
		return m.runScreen(ctx, id, query)
	}
	return nil, common.NewScreenNotFound(id)
}

type mockMarketService struct {
	listStocks      func(ctx context.Context, query models.StockListQuery) (*models.StockPage, error)
	getStock        func(ctx context.Context, symbol string, days int) (*models.StockDetail, error)
	stats           func(ctx context.Context) (*models.StoreStats, error)
	renderSparkline func(ctx context.Context, symbol string) ([]byte, error)
	invalidated     int
}

func (m *mockMarketService) ListStocks(ctx context.Context, query models.StockListQuery) (*models.StockPage, error) {
	if m.listStocks != nil {
		return m.listStocks(ctx, query)
	}
	return nil, errNotImplemented
}

func (m *mockMarketService) GetStock(ctx context.Context, symbol string, days int) (*models.StockDetail, error) {
	if m.getStock != nil {
		return m.getStock(ctx, symbol, days)
	}
	return nil, common.NewStockNotFound(symbol)
}

func (m *mockMarketService) Stats(ctx context.Context) (*models.StoreStats, error) {
	if m.stats != nil {
		return m.stats(ctx)
	}
	return &models.StoreStats{}, nil
}

func (m *mockMarketService) RenderSparkline(ctx context.Context, symbol string) ([]byte, error) {
	if m.renderSparkline != nil {
		return m.renderSparkline(ctx, symbol)
	}
	return nil, common.NewStockNotFound(symbol)
}

func (m *mockMarketService) Invalidate() { m.invalidated++ }

type mockPipelineService struct {
	collectOne func(ctx context.Context, symbol string) (*models.RunReport, error)
}

func (m *mockPipelineService) CollectAll(context.Context) (*models.RunReport, error) {
	return nil, errNotImplemented
}

func (m *mockPipelineService) CollectOne(ctx context.Context, symbol string) (*models.RunReport, error) {
	if m.collectOne != nil {
		return m.collectOne(ctx, symbol)
	}
	return nil, errNotImplemented
}

func (m *mockPipelineService) Stats(context.Context) (*models.StoreStats, error) {
	return &models.StoreStats{}, nil
}

type mockRunner struct {
	busy     bool
	triggers []string
	last     *models.RunReport
}

func (m *mockRunner) Trigger(source string) bool {
	if m.busy {
		return false
	}
	m.triggers = append(m.triggers, source)
	return true
}

func (m *mockRunner) Running() bool                 { return m.busy }
func (m *mockRunner) LastReport() *models.RunReport { return m.last }
func (m *mockRunner) Stop()                         {}

// testDeps groups the mocks behind a test server.
type testDeps struct {
	screens  *mockScreenService
	market   *mockMarketService
	pipeline *mockPipelineService
	runner   *mockRunner
}

func newTestServer(deps testDeps) *Server {
	logger := common.NewSilentLogger()
	if deps.screens == nil {
		deps.screens = &mockScreenService{}
	}
	if deps.market == nil {
		deps.market = &mockMarketService{}
	}
	if deps.pipeline == nil {
		deps.pipeline = &mockPipelineService{}
	}
	if deps.runner == nil {
		deps.runner = &mockRunner{}
	}
	a := &app.App{
		Config:          common.NewDefaultConfig(),
		Logger:          logger,
		ScreenService:   deps.screens,
		MarketService:   deps.market,
		PipelineService: deps.pipeline,
		Runner:          deps.runner,
	}
	return NewServer(a)
}
