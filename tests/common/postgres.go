// Package common provides shared container fixtures for storage integration tests.
package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	postgresOnce      sync.Once
	postgresContainer *PostgresContainer
	postgresError     error
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartPostgres starts a shared PostgreSQL container for the test run.
func StartPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("PostgreSQL container tests skipped in -short mode")
	}

	postgresOnce.Do(func() {
		ctx := context.Background()

		req := testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fnoscreen",
				"POSTGRES_PASSWORD": "fnoscreen",
				"POSTGRES_DB":       "fnoscreen",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				// postgres logs ready twice: once for the init server, once for the real one
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(60 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			postgresError = fmt.Errorf("start PostgreSQL container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			postgresError = fmt.Errorf("get PostgreSQL host: %w", err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			container.Terminate(ctx)
			postgresError = fmt.Errorf("get PostgreSQL port: %w", err)
			return
		}

		postgresContainer = &PostgresContainer{
			container: container,
			host:      host,
			port:      mappedPort.Port(),
		}
	})

	if postgresError != nil {
		t.Fatalf("PostgreSQL container failed: %v", postgresError)
	}

	return postgresContainer
}

// DSN returns a connection string for the given database.
func (c *PostgresContainer) DSN(database string) string {
	return fmt.Sprintf("host=%s port=%s user=fnoscreen password=fnoscreen dbname=%s sslmode=disable", c.host, c.port, database)
}

// Cleanup terminates the container.
func (c *PostgresContainer) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}

// CleanupPostgres terminates the shared container if one was started.
func CleanupPostgres() {
	postgresContainer.Cleanup()
}
