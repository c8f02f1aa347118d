// Package storage provides abstractions for persistent bill storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/divvy/internal/models"
)

// ErrNotFound is returned when a bill does not exist in the store.
var ErrNotFound = errors.New("bill not found")

// Mode names the active storage backend, for diagnostics.
type Mode string

const (
	ModeRemote    Mode = "remote"
	ModeSQLite    Mode = "sqlite"
	ModeLocalFile Mode = "local_file"
)

// Store is a key-value store of bill documents keyed by bill ID.
// This abstraction allows swapping storage backends (Postgres, SQLite, a JSON
// file) without changing the service layer.
type Store interface {
	// GetBill retrieves a bill by its ID.
	// Returns ErrNotFound if the bill does not exist.
	GetBill(ctx context.Context, id string) (*models.Bill, error)

	// SaveBill inserts or replaces the document stored under bill.ID.
	SaveBill(ctx context.Context, bill *models.Bill) error

	// DeleteBill removes a bill. Deleting a missing bill is not an error.
	DeleteBill(ctx context.Context, id string) error

	// LoadAllBills returns every stored bill keyed by ID.
	LoadAllBills(ctx context.Context) (map[string]*models.Bill, error)

	// Close releases any resources held by the store.
	Close() error
}
