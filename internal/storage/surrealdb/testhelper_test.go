package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	surreal "github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/fnoscreen/internal/common"
	tcommon "github.com/bobmcallan/fnoscreen/tests/common"
)

// testManager starts the shared SurrealDB container and returns a Manager
// on a database unique to the test.
func testManager(t *testing.T) *Manager {
	t.Helper()

	sc := tcommon.StartSurrealDB(t)
	ctx := context.Background()

	db, err := surreal.New(sc.Address())
	if err != nil {
		t.Fatalf("connect to SurrealDB: %v", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": "root",
		"pass": "root",
	}); err != nil {
		t.Fatalf("sign in to SurrealDB: %v", err)
	}

	// SurrealDB rejects "/" in database names
	sanitized := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbName := fmt.Sprintf("t_%s_%d", sanitized, time.Now().UnixNano()%100000)
	if err := db.Use(ctx, "fnoscreen_test", dbName); err != nil {
		t.Fatalf("select namespace/database: %v", err)
	}

	m, err := newManager(ctx, db, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("define tables: %v", err)
	}

	t.Cleanup(func() {
		m.Close()
	})

	return m
}
