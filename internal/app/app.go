// Package app wires configuration, storage, clients and services into one runnable core.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/clients/nse"
	"github.com/bobmcallan/fnoscreen/internal/clients/pacer"
	"github.com/bobmcallan/fnoscreen/internal/clients/yahoo"
	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/services/collector"
	"github.com/bobmcallan/fnoscreen/internal/services/market"
	"github.com/bobmcallan/fnoscreen/internal/services/pipeline"
	"github.com/bobmcallan/fnoscreen/internal/services/reconcile"
	"github.com/bobmcallan/fnoscreen/internal/services/screen"
	"github.com/bobmcallan/fnoscreen/internal/services/snapshot"
	"github.com/bobmcallan/fnoscreen/internal/signals"
	"github.com/bobmcallan/fnoscreen/internal/storage"
)

// App holds all initialized services and clients.
// It is the shared core used by every cmd/fnoscreen subcommand.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Storage         interfaces.StorageManager
	Clock           common.Clock
	Pacer           *pacer.Pacer
	NSEClient       *nse.Client
	YahooClient     *yahoo.Client
	Snapshots       *snapshot.Loader
	ScreenService   interfaces.ScreenService
	MarketService   interfaces.MarketService
	PipelineService interfaces.PipelineService
	Runner          interfaces.PipelineRunner
	StartupTime     time.Time

	scheduler *Scheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath checks the provided path, FNOSCREEN_CONFIG, then the binary dir, then config/.
func resolveConfigPath(configPath, binDir string) string {
	if configPath == "" {
		configPath = os.Getenv("FNOSCREEN_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "fnoscreen.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fnoscreen.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp initializes storage, clients and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	config, err := common.LoadConfig(resolveConfigPath(configPath, binDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Relative file paths resolve against the binary directory
	if config.Storage.Backend == storage.BackendSQLite && config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}
	if config.Screens.DefinitionsFile != "" && !filepath.IsAbs(config.Screens.DefinitionsFile) {
		if _, err := os.Stat(config.Screens.DefinitionsFile); os.IsNotExist(err) {
			config.Screens.DefinitionsFile = filepath.Join(binDir, config.Screens.DefinitionsFile)
		}
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	if config.IsProduction() && config.Storage.Backend == "sqlite" {
		logger.Warn().Str("path", config.Storage.Path).Msg("Embedded sqlite store in production; concurrent writers serialise on one file")
	}

	var custom []models.ScreenDefinition
	if config.Screens.DefinitionsFile != "" {
		custom, err = screen.LoadDefinitions(config.Screens.DefinitionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load screen definitions: %w", err)
		}
		logger.Info().Int("count", len(custom)).Str("file", config.Screens.DefinitionsFile).Msg("Custom screens loaded")
	}

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	clock := common.NewRealClock()

	// One pacer spans both sources so the combined request rate stays bounded
	p := pacer.New(config.Clients.GetRequestInterval(), clock)

	nseClient := nse.NewClient(
		nse.WithBaseURL(config.Clients.NSE.BaseURL),
		nse.WithLogger(logger),
		nse.WithPacer(p),
		nse.WithTimeout(config.Clients.NSE.GetTimeout()),
	)
	yahooClient := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithLogger(logger),
		yahoo.WithPacer(p),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
		yahoo.WithSymbolMapping(config.Clients.Yahoo.SymbolSuffix, config.Clients.Yahoo.SymbolOverrides),
	)

	store := storageManager.OHLCVStore()
	col := collector.NewCollector(nseClient, store, logger, clock, collector.ConfigFrom(config))
	detector := reconcile.NewDetector(store, logger, config.Reconcile.MismatchTolerance)
	adjuster := reconcile.NewAdjuster(yahooClient, store, logger)
	pipelineService := pipeline.NewService(storageManager, nseClient, yahooClient, col, detector, adjuster, logger, clock, pipeline.OptionsFrom(config))

	loader := snapshot.NewLoader(storageManager, signals.NewComputer(config.Screens.SparklinePoints), logger, config.Clients.Yahoo.BenchmarkName)
	screenService, err := screen.NewService(loader, logger, custom...)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize screens: %w", err)
	}
	marketService := market.NewService(storageManager, loader, logger)

	// Cached metrics are stale once a run has written new sessions
	pipelineService.OnRunComplete(marketService.Invalidate)

	a := &App{
		Config:          config,
		Logger:          logger,
		Storage:         storageManager,
		Clock:           clock,
		Pacer:           p,
		NSEClient:       nseClient,
		YahooClient:     yahooClient,
		Snapshots:       loader,
		ScreenService:   screenService,
		MarketService:   marketService,
		PipelineService: pipelineService,
		Runner:          pipeline.NewRunner(pipelineService, logger),
		StartupTime:     startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartScheduler starts the cron driven collection when schedule.collect_cron is set.
func (a *App) StartScheduler() error {
	if a.Config.Schedule.CollectCron == "" {
		a.Logger.Info().Msg("Scheduler: disabled (no collect_cron)")
		return nil
	}
	s, err := NewScheduler(a.Config.Schedule.CollectCron, a.Runner, a.Logger)
	if err != nil {
		return err
	}
	s.Start()
	a.scheduler = s
	return nil
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, stop background runs, close storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.Runner != nil {
		a.Runner.Stop()
		a.Runner = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
