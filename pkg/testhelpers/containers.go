package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/database"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// IntakeDB holds a shared test database with migrations applied.
type IntakeDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedIntakeDB     *IntakeDB
	sharedIntakeDBOnce sync.Once
	sharedIntakeDBErr  error
)

// GetIntakeDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetIntakeDB(t *testing.T) *IntakeDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedIntakeDBOnce.Do(func() {
		sharedIntakeDB, sharedIntakeDBErr = setupIntakeDB()
	})

	if sharedIntakeDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedIntakeDBErr)
	}

	return sharedIntakeDB
}

func setupIntakeDB() (*IntakeDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ekaya_intake_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
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
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/ekaya_intake_test?sslmode=disable",
		host, port.Port())

	var db *database.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnection(ctx, &database.Config{URL: connStr, MaxConnections: 5})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := database.MigratePool(db, MigrationsPath(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &IntakeDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// Truncate empties the given tables between tests.
func (d *IntakeDB) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := d.DB.Exec(context.Background(), "TRUNCATE "+table+" CASCADE")
		if err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// MSSQLImage is the SQL Server image used by the mssql sink integration tests.
const MSSQLImage = "mcr.microsoft.com/mssql/server:2022-latest"

// MSSQLPassword is the sa password of the test container.
const MSSQLPassword = "Intake_test_Passw0rd"

// MSSQLServer is a shared SQL Server container.
type MSSQLServer struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

var (
	sharedMSSQL     *MSSQLServer
	sharedMSSQLOnce sync.Once
	sharedMSSQLErr  error
)

// GetMSSQLServer returns a shared SQL Server container. Callers create their
// own database and tables; the container only guarantees a reachable server.
func GetMSSQLServer(t *testing.T) *MSSQLServer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMSSQLOnce.Do(func() {
		sharedMSSQL, sharedMSSQLErr = setupMSSQLServer()
	})

	if sharedMSSQLErr != nil {
		t.Fatalf("Failed to setup SQL Server container: %v", sharedMSSQLErr)
	}

	return sharedMSSQL
}

func setupMSSQLServer() (*MSSQLServer, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        MSSQLImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": MSSQLPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start SQL Server container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "1433")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &MSSQLServer{Container: container, Host: host, Port: port.Int()}, nil
}
