package main

import (
	"context"
	"log/slog"

	"github.com/mmynk/divvy/internal/config"
	"github.com/mmynk/divvy/internal/storage"
	"github.com/mmynk/divvy/internal/storage/filestore"
	"github.com/mmynk/divvy/internal/storage/sqlstore"
)

// openStore builds the storage adapter the settings select. An unreachable
// remote database leaves the server running on the local file.
func openStore(ctx context.Context, cfg *config.Config) (*storage.Adapter, error) {
	fallback := filestore.New(cfg.BillsFile)
	mode := cfg.StorageMode()

	var primary storage.Store
	switch mode {
	case storage.ModeRemote:
		db, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("Database unreachable, using local file", "path", cfg.BillsFile, "error", err)
			break
		}
		primary = db
	case storage.ModeSQLite:
		db, err := sqlstore.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		primary = db
	}

	store := storage.NewAdapter(primary, mode, fallback, cfg.RetryPolicy())
	slog.Info("Storage initialized", "mode", store.Mode(), "fallback", cfg.BillsFile)
	return store, nil
}
