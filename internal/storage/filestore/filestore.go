// Package filestore keeps every bill in a single local JSON file, keyed by
// bill ID. It is the development backend and the read fallback for the
// database stores.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/storage"
)

// Ensure FileStore implements storage.Store
var _ storage.Store = (*FileStore)(nil)

// DefaultPath is the file used when BILLS_FILE is not set.
const DefaultPath = "./data/bills.json"

// FileStore implements storage.Store on top of a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// New returns a store backed by path. The file is created on first write.
func New(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// GetBill returns the bill stored under id.
func (s *FileStore) GetBill(_ context.Context, id string) (*models.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills, err := s.read()
	if err != nil {
		return nil, err
	}
	bill, ok := bills[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bill, nil
}

// SaveBill replaces the bill stored under bill.ID.
func (s *FileStore) SaveBill(_ context.Context, bill *models.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills, err := s.read()
	if err != nil {
		return err
	}
	bills[bill.ID] = bill
	return s.write(bills)
}

// DeleteBill removes id from the file if present.
func (s *FileStore) DeleteBill(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := bills[id]; !ok {
		return nil
	}
	delete(bills, id)
	return s.write(bills)
}

// LoadAllBills returns every bill in the file.
func (s *FileStore) LoadAllBills(_ context.Context) (map[string]*models.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() (map[string]*models.Bill, error) {
	bills := make(map[string]*models.Bill)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return bills, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bills file: %w", err)
	}
	if len(data) == 0 {
		return bills, nil
	}
	if err := json.Unmarshal(data, &bills); err != nil {
		return nil, fmt.Errorf("failed to decode bills file: %w", err)
	}

	for id, b := range bills {
		if b == nil {
			delete(bills, id)
			continue
		}
		if b.ID == "" {
			b.ID = id
		}
	}
	return bills, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(bills map[string]*models.Bill) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(bills, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bills: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bills-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace bills file: %w", err)
	}
	return nil
}
