package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/divvy/internal/metrics"
	"github.com/mmynk/divvy/internal/models"
)

// Ensure Adapter implements Store
var _ Store = (*Adapter)(nil)

// Adapter is the storage boundary used by the service layer. It retries
// transient failures of the primary store and, on reads only, degrades to a
// local file when the primary is unreachable. Writes never fall back: a
// failed save is returned to the caller.
type Adapter struct {
	primary  Store
	fallback Store
	mode     Mode
	retry    RetryPolicy
}

// NewAdapter wraps primary. fallback may be nil; when primary is nil the
// fallback becomes the primary store and the mode is ModeLocalFile.
func NewAdapter(primary Store, mode Mode, fallback Store, policy RetryPolicy) *Adapter {
	if primary == nil {
		primary, fallback, mode = fallback, nil, ModeLocalFile
	}
	return &Adapter{
		primary:  primary,
		fallback: fallback,
		mode:     mode,
		retry:    policy,
	}
}

// Mode reports the active backend.
func (a *Adapter) Mode() Mode {
	return a.mode
}

// GetBill reads from the primary store, then the fallback file. Any failure
// other than a clean miss is logged and reported as ErrNotFound.
func (a *Adapter) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	var bill *models.Bill
	err := a.retry.Do(ctx, "get", func(ctx context.Context) error {
		var err error
		bill, err = a.primary.GetBill(ctx, id)
		return err
	})
	if err == nil {
		bill.Normalize()
		return bill, nil
	}
	if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return nil, ErrNotFound
	}

	slog.Warn("Primary store read failed, trying local file", "bill_id", id, "error", err)
	if a.fallback == nil {
		return nil, ErrNotFound
	}
	metrics.StorageFallbacks.WithLabelValues("get").Inc()
	bill, err = a.fallback.GetBill(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Fallback read failed", "bill_id", id, "error", err)
		}
		return nil, ErrNotFound
	}
	bill.Normalize()
	return bill, nil
}

// SaveBill writes to the primary store, retrying transient failures.
func (a *Adapter) SaveBill(ctx context.Context, bill *models.Bill) error {
	err := a.retry.Do(ctx, "save", func(ctx context.Context) error {
		return a.primary.SaveBill(ctx, bill)
	})
	if err != nil {
		return fmt.Errorf("failed to save bill %s: %w", bill.ID, err)
	}
	return nil
}

// DeleteBill removes a bill from the primary store.
func (a *Adapter) DeleteBill(ctx context.Context, id string) error {
	err := a.retry.Do(ctx, "delete", func(ctx context.Context) error {
		return a.primary.DeleteBill(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete bill %s: %w", id, err)
	}
	return nil
}

// LoadAllBills reads every bill. Failures degrade to the fallback file and
// then to an empty result.
func (a *Adapter) LoadAllBills(ctx context.Context) (map[string]*models.Bill, error) {
	var bills map[string]*models.Bill
	err := a.retry.Do(ctx, "load_all", func(ctx context.Context) error {
		var err error
		bills, err = a.primary.LoadAllBills(ctx)
		return err
	})
	if err != nil {
		slog.Warn("Primary store load failed", "mode", a.mode, "error", err)
		bills = map[string]*models.Bill{}
		if a.fallback != nil {
			metrics.StorageFallbacks.WithLabelValues("load_all").Inc()
			if fb, ferr := a.fallback.LoadAllBills(ctx); ferr == nil {
				bills = fb
			} else {
				slog.Warn("Fallback load failed", "error", ferr)
			}
		}
	}

	for _, b := range bills {
		b.Normalize()
	}
	return bills, nil
}

// Close closes both stores.
func (a *Adapter) Close() error {
	err := a.primary.Close()
	if a.fallback != nil {
		err = errors.Join(err, a.fallback.Close())
	}
	return err
}
