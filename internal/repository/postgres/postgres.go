package postgres

import (
	"context"
	"database/sql"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/migrations"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

// Ensure PostgresDB implements db.Database interface
var _ db.Database = (*PostgresDB)(nil)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	externalIdentityIndex = "users_external_identity_idx"
)

// PostgresDB implements the db.Database interface
type PostgresDB struct {
	conn *sql.DB
}

// NewPostgresDB connects, pings and migrates
func NewPostgresDB(dbConfig config.DatabaseConfig) (*PostgresDB, error) {
	logger.Log.WithField("host", dbConfig.Host).Info("Connecting to PostgreSQL")

	conn, err := sql.Open("postgres", dbConfig.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.Log.Info("Successfully connected to PostgreSQL")

	database := NewWithConn(conn)
	if err = database.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return database, nil
}

// NewWithConn wraps an already opened connection pool
func NewWithConn(conn *sql.DB) *PostgresDB {
	return &PostgresDB{conn: conn}
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// GetDB returns the underlying database connection
func (p *PostgresDB) GetDB() *sql.DB {
	return p.conn
}

// Ping reports whether the database is reachable
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.conn.PingContext(ctx)
}

// RunMigrations applies the embedded postgres migrations
func (p *PostgresDB) RunMigrations() error {
	driver, err := postgres.WithInstance(p.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, "postgres")
	if err != nil {
		return fmt.Errorf("error opening migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Database migrations applied successfully")
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
