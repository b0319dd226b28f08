package data

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/storage"
	tcommon "github.com/bobmcallan/fnoscreen/tests/common"
)

// backend opens a fresh, empty StorageManager.
type backend struct {
	name string
	open func(t *testing.T) interfaces.StorageManager
}

var backends = []backend{
	{storage.BackendSQLite, openSQLite},
	{storage.BackendPostgres, openPostgres},
	{storage.BackendSurreal, openSurreal},
}

// forEachBackend runs fn as a subtest against every storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, m interfaces.StorageManager)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			m := b.open(t)
			t.Cleanup(func() { m.Close() })
			fn(t, m)
		})
	}
}

var dbSeq atomic.Int64

// uniqueName returns a database name unique to this process, short enough for postgres identifiers.
func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("t_%d_%d", time.Now().UnixNano()%1000000000, dbSeq.Add(1))
}

func openManager(t *testing.T, cfg *common.Config) interfaces.StorageManager {
	t.Helper()
	mgr, err := storage.NewStorageManager(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("create %s storage manager: %v", cfg.Storage.Backend, err)
	}
	return mgr
}

func openSQLite(t *testing.T) interfaces.StorageManager {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = storage.BackendSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "stocks.db")
	return openManager(t, cfg)
}

func openPostgres(t *testing.T) interfaces.StorageManager {
	pc := tcommon.StartPostgres(t)
	name := uniqueName(t)

	admin, err := gorm.Open(postgres.Open(pc.DSN("fnoscreen")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("connect to PostgreSQL: %v", err)
	}
	if err := admin.Exec("CREATE DATABASE " + name).Error; err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}
	if sqlDB, err := admin.DB(); err == nil {
		sqlDB.Close()
	}

	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = storage.BackendPostgres
	cfg.Storage.DSN = pc.DSN(name)
	return openManager(t, cfg)
}

func openSurreal(t *testing.T) interfaces.StorageManager {
	sc := tcommon.StartSurrealDB(t)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = storage.BackendSurreal
	cfg.Storage.Address = sc.Address()
	cfg.Storage.Namespace = "fnoscreen_data_test"
	cfg.Storage.Database = uniqueName(t)
	cfg.Storage.Username = "root"
	cfg.Storage.Password = "root"
	return openManager(t, cfg)
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func bar(symbol string, d int, close float64) models.OHLCVRecord {
	c := decimal.NewFromFloat(close)
	return models.OHLCVRecord{
		Symbol:         symbol,
		Date:           day(d),
		Series:         models.SeriesEquity,
		Open:           c.Sub(decimal.NewFromInt(1)),
		High:           c.Add(decimal.NewFromInt(2)),
		Low:            c.Sub(decimal.NewFromInt(2)),
		Close:          c,
		PrevClose:      c.Sub(decimal.NewFromInt(1)),
		Volume:         10000,
		Value:          c.Mul(decimal.NewFromInt(10000)),
		VWAP:           c,
		Trades:         420,
		DeliveryVolume: 6000,
		DeliveryPct:    decimal.NewFromInt(60),
	}
}
