// Package sqlite implements db.Database on an embedded SQLite file.
// Used for local development and for exercising the ledger against real SQL.
package sqlite

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/migrations"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	gosqlite "github.com/mattn/go-sqlite3"
)

var _ db.Database = (*SQLiteDB)(nil)

// SQLiteDB implements db.Database
type SQLiteDB struct {
	conn *sql.DB
	now  func() time.Time
}

// NewSQLiteDB opens (creating if needed) the database file and migrates it.
// Transactions begin IMMEDIATE so read-modify-write sequences hold the write lock.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL", path)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	database := &SQLiteDB{conn: conn, now: func() time.Time { return time.Now().UTC() }}
	if err = database.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.WithField("path", path).Info("Opened SQLite database")
	return database, nil
}

// RunMigrations applies the embedded sqlite migrations
func (s *SQLiteDB) RunMigrations() error {
	driver, err := sqlite3.WithInstance(s.conn, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("error opening migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.conn.Close()
}

// Ping reports whether the database is reachable
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func isConstraint(err error, code gosqlite.ErrNoExtended) bool {
	var sqliteErr gosqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
