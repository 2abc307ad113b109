//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"sparkify/internal/db"
	"sparkify/internal/schema"
)

// DefaultPostgresImage is the image the integration tests run against.
const DefaultPostgresImage = "postgres:16-alpine"

// SkipIfNoDocker skips the test if the Docker daemon is not reachable.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// Postgres starts a throwaway Postgres container, creates the star schema
// in it and returns its DSN. The container is terminated when the test ends.
func Postgres(t *testing.T, opts schema.Options) (string, *schema.Schema) {
	t.Helper()
	SkipIfNoDocker(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        DefaultPostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "student",
			"POSTGRES_PASSWORD": "student",
			"POSTGRES_DB":       "sparkifydb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("create postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://student:student@%s:%s/sparkifydb?sslmode=disable", host, port.Port())

	s, err := schema.New(schema.Postgres, opts)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	conn, err := db.Open(ctx, string(schema.Postgres), dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer conn.Close(ctx)
	for _, stmt := range s.CreateStatements() {
		if err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("create: %v\n%s", err, stmt)
		}
	}
	return dsn, s
}
