// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/stl-trade/db/migrator"
	"github.com/archon-research/stl-trade/internal/pkg/retry"
)

const postgresImage = "postgres:17-alpine"

// StartPostgres runs a PostgreSQL container for the duration of the test
// and returns its DSN. Nothing is migrated.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "trade",
				"POSTGRES_PASSWORD": "trade",
				"POSTGRES_DB":       "trade",
			},
			WaitingFor: wait.ForAll(
				// The entrypoint restarts the server once after initdb.
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(60*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://trade:trade@%s:%s/trade?sslmode=disable", host, port.Port())
}

// ConnectPool opens a pool on dsn, waiting for the server to accept
// connections. The pool is closed when the test ends.
func ConnectPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	cfg := retry.Config{MaxRetries: 30, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}
	if err := retry.DoVoid(ctx, cfg, nil, nil, func() error { return pool.Ping(ctx) }); err != nil {
		t.Fatalf("waiting for database: %v", err)
	}
	return pool
}

// MigrationsDir is the absolute path of db/migrations.
func MigrationsDir() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "../../db/migrations")
}

// SetupPostgres starts a container, connects and applies every migration.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool := ConnectPool(t, StartPostgres(t))
	if err := migrator.New(pool, MigrationsDir(), nil).ApplyAll(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return pool
}

// Truncate empties the given tables so subtests can share one container.
func Truncate(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	names := make([]string, len(tables))
	for i, table := range tables {
		names[i] = pgx.Identifier{table}.Sanitize()
	}
	if _, err := pool.Exec(context.Background(), "TRUNCATE "+strings.Join(names, ", ")); err != nil {
		t.Fatalf("truncate %v: %v", tables, err)
	}
}
