package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/sogos/pixelpipe/migrations"
)

const (
	// Retry configuration for database connections
	maxRetries     = 10
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

// DB holds the database connection.
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection with retry logic.
func NewDB(databaseURL string) (*DB, error) {
	return NewDBWithContext(context.Background(), databaseURL)
}

// NewDBWithContext creates a new database connection with retry logic and
// context support. A database that is still starting up is ridden out by
// the backoff instead of failing the first attempt. The scheduler's
// reconnect path does not open a new pool; it uses WaitReady.
func NewDBWithContext(ctx context.Context, databaseURL string) (*DB, error) {
	var db *sql.DB
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
		default:
		}

		db, lastErr = sql.Open("postgres", databaseURL)
		if lastErr != nil {
			backoff := calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				continue
			}
		}

		// Configure connection pool before testing
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)

		// Ping with timeout
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()

		if lastErr == nil {
			return &DB{db}, nil
		}

		// Close failed connection before retry
		db.Close()

		backoff := calculateBackoff(attempt)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
		case <-time.After(backoff):
			continue
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, mapError(lastErr))
}

// calculateBackoff returns exponential backoff duration capped at maxBackoff.
func calculateBackoff(attempt int) time.Duration {
	backoff := initialBackoff * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// WaitReady pings the pool with the connection backoff until the database
// answers. Used by the scheduler's reconnect path; database/sql re-dials
// under the hood, so a healthy ping means fresh connections are available.
func (db *DB) WaitReady(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for database cancelled: %w", ctx.Err())
		case <-time.After(calculateBackoff(attempt)):
		}
	}
	return fmt.Errorf("database still unreachable: %w", mapError(lastErr))
}

// Migrate brings the schema up to date using the embedded migrations.
func (db *DB) Migrate() error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ResetDatabase drops and recreates the application database named by the
// URL. It connects to the server's maintenance database to do so; every
// session on the target database is terminated first.
func ResetDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database URL %q has no database name", databaseURL)
	}

	admin := *u
	admin.Path = "/postgres"

	conn, err := sql.Open("postgres", admin.String())
	if err != nil {
		return fmt.Errorf("failed to open maintenance connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.Exec(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		dbName,
	)
	if err != nil {
		return fmt.Errorf("failed to terminate sessions: %w", mapError(err))
	}

	if _, err := conn.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdentifier(dbName))); err != nil {
		return fmt.Errorf("failed to drop database: %w", mapError(err))
	}
	if _, err := conn.Exec(fmt.Sprintf("CREATE DATABASE %s", quoteIdentifier(dbName))); err != nil {
		return fmt.Errorf("failed to create database: %w", mapError(err))
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
