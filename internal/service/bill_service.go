package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/divvy/internal/cache"
	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/metrics"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/ocr"
	"github.com/mmynk/divvy/internal/storage"
)

// BillService applies every state change to bill documents.
//
// Each mutation follows the same steps: load the bill (from cache, or from
// storage when fresh data is required), check preconditions, change a private
// copy, recalculate totals, save to storage and only then update the cache.
// Bills are not locked between the load and the save, so concurrent writers
// can overwrite each other; the last save wins.
type BillService struct {
	store     storage.Store
	cache     *cache.BillCache
	policy    cache.Policy
	links     calculator.PaymentLinks
	extractor ocr.Extractor
	now       func() time.Time
	newID     func() string
}

// Option configures a BillService.
type Option func(*BillService)

// WithCachePolicy sets when reads bypass the cache.
func WithCachePolicy(p cache.Policy) Option {
	return func(s *BillService) { s.policy = p }
}

// WithPaymentLinks sets the payment link builder.
func WithPaymentLinks(l calculator.PaymentLinks) Option {
	return func(s *BillService) { s.links = l }
}

// WithExtractor sets the OCR engine used by Scan.
func WithExtractor(e ocr.Extractor) Option {
	return func(s *BillService) { s.extractor = e }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *BillService) { s.now = now }
}

// WithIDGenerator overrides the short ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *BillService) { s.newID = newID }
}

// NewBillService creates a BillService over store and c.
func NewBillService(store storage.Store, c *cache.BillCache, opts ...Option) *BillService {
	s := &BillService{
		store: store,
		cache: c,
		now:   time.Now,
		newID: shortID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shortID returns the first 8 characters of a random UUID.
func shortID() string {
	return uuid.New().String()[:8]
}

// load returns a private copy of the bill.
func (s *BillService) load(ctx context.Context, id string, fresh bool) (*models.Bill, error) {
	if s.policy.Fresh(fresh) {
		metrics.CacheLookups.WithLabelValues("bypass").Inc()
	} else {
		if bill, ok := s.cache.Get(id); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return bill, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	bill, err := s.store.GetBill(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, &Error{Kind: KindStorageFailure, Message: "Failed to load bill", Err: err}
	}
	bill.Normalize()
	s.cache.Put(bill)
	metrics.CachedBills.Set(float64(s.cache.Len()))
	return bill, nil
}

// save persists bill and, only on success, refreshes the cache.
func (s *BillService) save(ctx context.Context, bill *models.Bill) error {
	if err := s.store.SaveBill(ctx, bill); err != nil {
		slog.Error("Failed to save bill", "bill_id", bill.ID, "error", err)
		return storageFailure(err)
	}
	s.cache.Put(bill)
	metrics.CachedBills.Set(float64(s.cache.Len()))
	slog.Debug("Saved bill",
		"bill_id", bill.ID,
		"people", len(bill.People),
		"items", len(bill.Items),
		"total", bill.Total,
	)
	return nil
}

// mutate runs the load, change, recalculate and save cycle for one operation.
func (s *BillService) mutate(ctx context.Context, op, id string, fresh bool, apply func(*models.Bill) error) (*models.Bill, error) {
	bill, err := s.load(ctx, id, fresh)
	if err == nil {
		err = apply(bill)
	}
	if err == nil {
		bill.Recalculate()
		err = s.save(ctx, bill)
	}
	record(op, err)
	if err != nil {
		if KindOf(err) == KindInternal {
			slog.Error("Bill operation failed", "op", op, "bill_id", id, "error", err)
		}
		return nil, err
	}
	return bill, nil
}

func record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.Mutations.WithLabelValues(op, outcome).Inc()
}

func requireUnlocked(b *models.Bill) error {
	if b.Locked {
		return ErrBillLocked
	}
	return nil
}

// requireOpen rejects closed and locked bills, in that order.
func requireOpen(b *models.Bill) error {
	if b.Status == models.StatusClosed {
		return ErrBillClosed
	}
	return requireUnlocked(b)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Create stores a new empty draft bill.
func (s *BillService) Create(ctx context.Context, title string) (*models.Bill, error) {
	bill := models.NewBill(s.newID(), title, s.now())
	err := s.save(ctx, bill)
	record("create", err)
	if err != nil {
		return nil, err
	}
	slog.Info("Created bill", "bill_id", bill.ID, "title", bill.Title)
	return bill, nil
}

// Scan extracts a receipt image into a new draft bill. Nothing is stored when
// extraction fails.
func (s *BillService) Scan(ctx context.Context, image []byte, mimeType string) (*models.Bill, error) {
	bill, err := s.scan(ctx, image, mimeType)
	record("scan", err)
	return bill, err
}

func (s *BillService) scan(ctx context.Context, image []byte, mimeType string) (*models.Bill, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, invalid("File must be an image")
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if s.extractor == nil {
		return nil, extractionFailure("none", errors.New("no OCR engine configured"))
	}

	start := time.Now()
	draft, err := s.extractor.Extract(ctx, image, mimeType)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OCRDuration.WithLabelValues(s.extractor.Name(), outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("Receipt extraction failed", "engine", s.extractor.Name(), "error", err)
		return nil, extractionFailure(s.extractor.Name(), err)
	}

	bill := models.NewBill(s.newID(), "", s.now())
	for _, it := range draft.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		bill.Items = append(bill.Items, models.BillItem{
			ID:         s.newID(),
			Name:       it.Name,
			Price:      it.Price,
			Quantity:   qty,
			AssignedTo: []string{},
		})
	}

	// Extracted amounts are kept as printed; only missing ones are derived.
	itemsSum := 0.0
	for i := range bill.Items {
		itemsSum += bill.Items[i].LineTotal()
	}
	bill.Subtotal = valueOr(draft.Subtotal, itemsSum)
	bill.Tax = valueOr(draft.Tax, 0)
	bill.Tip = valueOr(draft.Tip, 0)
	bill.Total = valueOr(draft.Total, bill.Subtotal+bill.Tax+bill.Tip)

	if err := s.save(ctx, bill); err != nil {
		return nil, err
	}
	slog.Info("Scanned bill",
		"bill_id", bill.ID,
		"engine", s.extractor.Name(),
		"items", len(bill.Items),
		"total", bill.Total,
	)
	return bill, nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Get returns a bill. fresh bypasses the cache.
func (s *BillService) Get(ctx context.Context, id string, fresh bool) (*models.Bill, error) {
	return s.load(ctx, id, fresh)
}

// List returns summaries of every bill, newest first. Bills missing from the
// cache are added to it; cached entries are not overwritten.
func (s *BillService) List(ctx context.Context) ([]models.Summary, error) {
	stored, err := s.store.LoadAllBills(ctx)
	if err != nil {
		return nil, &Error{Kind: KindStorageFailure, Message: "Failed to load bills", Err: err}
	}
	for id, b := range stored {
		if !s.cache.Has(id) {
			b.Normalize()
			s.cache.Put(b)
		}
	}
	metrics.CachedBills.Set(float64(s.cache.Len()))

	snapshot := s.cache.Snapshot()
	summaries := make([]models.Summary, 0, len(snapshot))
	for _, b := range snapshot {
		summaries = append(summaries, b.Summarize())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt != summaries[j].CreatedAt {
			return summaries[i].CreatedAt > summaries[j].CreatedAt
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// Delete removes a bill from storage and then from the cache.
func (s *BillService) Delete(ctx context.Context, id string) error {
	err := s.delete(ctx, id)
	record("delete", err)
	return err
}

func (s *BillService) delete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id, true); err != nil {
		return err
	}
	if err := s.store.DeleteBill(ctx, id); err != nil {
		return &Error{Kind: KindStorageFailure, Message: "Failed to delete bill", Err: err}
	}
	s.cache.Delete(id)
	metrics.CachedBills.Set(float64(s.cache.Len()))
	slog.Info("Deleted bill", "bill_id", id)
	return nil
}

// Refresh reloads one bill from storage into the cache.
func (s *BillService) Refresh(ctx context.Context, id string) (*models.Bill, error) {
	return s.load(ctx, id, true)
}

// RefreshAll reloads every stored bill into the cache and returns the cache
// size.
func (s *BillService) RefreshAll(ctx context.Context) (int, error) {
	bills, err := s.store.LoadAllBills(ctx)
	if err != nil {
		return 0, &Error{Kind: KindStorageFailure, Message: "Failed to load bills", Err: err}
	}
	for _, b := range bills {
		b.Normalize()
	}
	s.cache.PutAll(bills)
	n := s.cache.Len()
	metrics.CachedBills.Set(float64(n))
	slog.Info("Refreshed bills from storage", "loaded", len(bills), "cached", n)
	return n, nil
}

// ParticipantView is the read-only overview shared with participants.
type ParticipantView struct {
	Bill         *models.Bill       `json:"bill"`
	PersonTotals map[string]float64 `json:"person_totals"`
	PaymentLinks map[string]string  `json:"payment_links"`
}

// Participant returns the bill with each person's total and payment link.
func (s *BillService) Participant(ctx context.Context, id string) (*ParticipantView, error) {
	bill, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	split := calculator.Settle(bill, s.links)
	return &ParticipantView{
		Bill:         bill,
		PersonTotals: split.PersonTotals,
		PaymentLinks: split.PaymentLinks,
	}, nil
}

// CalculateSplits returns how much each person owes.
func (s *BillService) CalculateSplits(ctx context.Context, id string) (*calculator.Split, error) {
	bill, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return calculator.Settle(bill, s.links), nil
}

// StatusReport describes the running configuration.
type StatusReport struct {
	Status      string `json:"status"`
	OCREngine   string `json:"ocr_engine"`
	StorageMode string `json:"storage_mode"`
	CachedBills int    `json:"cached_bills"`
}

// Status reports the OCR engine and storage mode.
func (s *BillService) Status() StatusReport {
	engine := "none"
	if s.extractor != nil {
		engine = s.extractor.Name()
	}
	mode := "unknown"
	if m, ok := s.store.(interface{ Mode() storage.Mode }); ok {
		mode = string(m.Mode())
	}
	return StatusReport{
		Status:      "ok",
		OCREngine:   engine,
		StorageMode: mode,
		CachedBills: s.cache.Len(),
	}
}
