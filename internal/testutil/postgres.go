// Package testutil starts the PostgreSQL container shared by the storage
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

// PostgresContainer is a migrated PostgreSQL instance and a pool connected
// to it.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	Config    config.DatabaseConfig
}

// StartPostgres starts a container, applies the embedded migrations, and
// connects a pool. It is meant for TestMain, where one container serves a
// whole package.
//
// Precondition: Docker must be available.
// Postcondition: on success the caller must Close the container.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "skirmish",
				"POSTGRES_PASSWORD": "skirmish",
				"POSTGRES_DB":       "skirmish_test",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	pc := &PostgresContainer{container: container}
	if err := pc.connect(ctx); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return pc, nil
}

func (pc *PostgresContainer) connect(ctx context.Context) error {
	host, err := pc.container.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pc.container.MappedPort(ctx, "5432")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	pc.Config = config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "skirmish",
		Password:        "skirmish",
		Name:            "skirmish_test",
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	if err := postgres.MigrateUp(pc.Config.DSN()); err != nil {
		return err
	}
	pc.Pool, err = postgres.NewPool(ctx, pc.Config)
	return err
}

// Reset empties every table so each test starts from a clean schema.
func (pc *PostgresContainer) Reset(t *testing.T) {
	t.Helper()
	if _, err := pc.Pool.DB().Exec(context.Background(), "TRUNCATE combatants, kill_log"); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}

// Close releases the pool and terminates the container.
func (pc *PostgresContainer) Close(ctx context.Context) error {
	if pc.Pool != nil {
		pc.Pool.Close()
	}
	return pc.container.Terminate(ctx)
}
