// Package storage selects the configured storage backend.
package storage

import (
	"fmt"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/storage/gormdb"
	"github.com/bobmcallan/fnoscreen/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSurreal  = "surrealdb"
)

// NewStorageManager creates the StorageManager for config.Storage.Backend.
// Supported backends: "sqlite" (default), "postgres", "surrealdb".
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendSQLite
	}

	switch backend {
	case BackendSQLite, BackendPostgres:
		return gormdb.NewManager(logger, config)

	case BackendSurreal:
		return surrealdb.NewManager(logger, config)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, postgres, surrealdb)", backend)
	}
}
