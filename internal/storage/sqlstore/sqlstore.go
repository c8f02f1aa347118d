// Package sqlstore provides a SQL-backed implementation of the storage.Store
// interface. Bills are stored as JSON documents in a two-column table, on
// either an embedded SQLite file or a remote Postgres database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Driver is a database/sql driver name.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "pgx"
)

// Store implements storage.Store using a SQL database.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

type billRow struct {
	ID        string `db:"id"`
	Data      string `db:"data"`
	UpdatedAt string `db:"updated_at"`
}

// OpenSQLite opens (creating if needed) the SQLite file at dbPath and runs
// migrations.
func OpenSQLite(dbPath string) (*Store, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(string(DriverSQLite), dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return newStore(db, DriverSQLite)
}

// OpenPostgres connects to the database at url and runs migrations.
func OpenPostgres(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open(string(DriverPostgres), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return newStore(db, DriverPostgres)
}

func newStore(db *sql.DB, driver Driver) (*Store, error) {
	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: sqlx.NewDb(db, string(driver)), driver: driver}, nil
}

// Driver reports the underlying driver.
func (s *Store) Driver() Driver {
	return s.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetBill retrieves a bill by ID.
func (s *Store) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	var row billRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT id, data, updated_at FROM bills WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return decode(row)
}

// SaveBill inserts or replaces the bill document.
func (s *Store) SaveBill(ctx context.Context, bill *models.Bill) error {
	data, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("failed to encode bill: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO bills (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, bill.ID, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save bill: %w", err)
	}
	return nil
}

// DeleteBill removes a bill.
func (s *Store) DeleteBill(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM bills WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	return nil
}

// LoadAllBills returns every stored bill. Rows that fail to decode are logged
// and skipped rather than failing the whole load.
func (s *Store) LoadAllBills(ctx context.Context) (map[string]*models.Bill, error) {
	var rows []billRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, data, updated_at FROM bills"); err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	bills := make(map[string]*models.Bill, len(rows))
	for _, row := range rows {
		bill, err := decode(row)
		if err != nil {
			slog.Warn("Skipping undecodable bill", "bill_id", row.ID, "error", err)
			continue
		}
		bills[row.ID] = bill
	}
	return bills, nil
}

// updatedAt returns when each bill was last written, keyed by ID.
func (s *Store) updatedAt(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		ID        string `db:"id"`
		UpdatedAt string `db:"updated_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, updated_at FROM bills"); err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.UpdatedAt
	}
	return out, nil
}

func decode(row billRow) (*models.Bill, error) {
	var bill models.Bill
	if err := json.Unmarshal([]byte(row.Data), &bill); err != nil {
		return nil, fmt.Errorf("failed to decode bill %s: %w", row.ID, err)
	}
	if bill.ID == "" {
		bill.ID = row.ID
	}
	return &bill, nil
}
