package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/divvy/internal/cache"
	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/ocr"
	"github.com/mmynk/divvy/internal/storage"
)

// memStore is an in-memory storage.Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	bills    map[string]*models.Bill
	saveErr  error
	loadErr  error
	getCalls int
}

func newMemStore() *memStore {
	return &memStore{bills: make(map[string]*models.Bill)}
}

func (m *memStore) GetBill(_ context.Context, id string) (*models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	b, ok := m.bills[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b.Clone(), nil
}

func (m *memStore) SaveBill(_ context.Context, b *models.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.bills[b.ID] = b.Clone()
	return nil
}

func (m *memStore) DeleteBill(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bills, id)
	return nil
}

func (m *memStore) LoadAllBills(context.Context) (map[string]*models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]*models.Bill, len(m.bills))
	for id, b := range m.bills {
		out[id] = b.Clone()
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) stored(t *testing.T, id string) *models.Bill {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	require.True(t, ok, "bill %s not stored", id)
	return b.Clone()
}

func (m *memStore) put(b *models.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[b.ID] = b.Clone()
}

func (m *memStore) failSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

type fakeExtractor struct {
	draft *ocr.Draft
	err   error
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(context.Context, []byte, string) (*ocr.Draft, error) {
	return f.draft, f.err
}

var testNow = time.Date(2025, 3, 14, 20, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id%06d", n.Add(1))
	}
}

func newTestService(t *testing.T, opts ...Option) (*BillService, *memStore, *cache.BillCache) {
	t.Helper()
	store := newMemStore()
	c := cache.New()
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
	}, opts...)
	return NewBillService(store, c, opts...), store, c
}

// seedBill stores a bill with two items and the given people.
func seedBill(t *testing.T, store *memStore, people ...string) *models.Bill {
	t.Helper()
	b := models.NewBill("bill0001", "Cena", testNow)
	b.Items = []models.BillItem{
		{ID: "item-pizza", Name: "Pizza", Price: 1000, Quantity: 3, AssignedTo: []string{}},
		{ID: "item-beer", Name: "Cerveza", Price: 500, Quantity: 1, AssignedTo: []string{}},
	}
	b.People = append(b.People, people...)
	b.Recalculate()
	store.put(b)
	return b
}

func TestCreate(t *testing.T) {
	svc, store, c := newTestService(t)
	ctx := context.Background()

	bill, err := svc.Create(ctx, "   ")
	require.NoError(t, err)

	assert.Equal(t, "id000001", bill.ID)
	assert.Equal(t, models.DefaultTitle, bill.Title)
	assert.Equal(t, models.StatusDraft, bill.Status)
	assert.False(t, bill.Locked)
	assert.Equal(t, testNow.Format(time.RFC3339), bill.CreatedAt)
	assert.Empty(t, bill.Items)

	assert.Equal(t, bill, store.stored(t, bill.ID))
	assert.True(t, c.Has(bill.ID))
}

func TestCreate_StorageFailure(t *testing.T) {
	svc, store, c := newTestService(t)
	store.failSaves(errors.New("disk full"))

	_, err := svc.Create(context.Background(), "Almuerzo")
	require.Error(t, err)
	assert.Equal(t, KindStorageFailure, KindOf(err))
	assert.Equal(t, 0, c.Len())
}

func TestGet(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedBill(t, store, "Ana")

	bill, err := svc.Get(ctx, "bill0001", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, bill.People)

	// Second read is served from the cache.
	_, err = svc.Get(ctx, "bill0001", false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls)

	_, err = svc.Get(ctx, "bill0001", true)
	require.NoError(t, err)
	assert.Equal(t, 2, store.getCalls)

	_, err = svc.Get(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrBillNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGet_AlwaysFreshPolicy(t *testing.T) {
	svc, store, _ := newTestService(t, WithCachePolicy(cache.Policy{AlwaysFresh: true}))
	seedBill(t, store)

	for range 3 {
		_, err := svc.Get(context.Background(), "bill0001", false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.getCalls)
}

func TestGet_ReturnsPrivateCopy(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedBill(t, store)

	bill, err := svc.Get(context.Background(), "bill0001", false)
	require.NoError(t, err)
	bill.People = append(bill.People, "Intruso")
	bill.Items[0].AssignedTo = append(bill.Items[0].AssignedTo, "Intruso")

	again, err := svc.Get(context.Background(), "bill0001", false)
	require.NoError(t, err)
	assert.Empty(t, again.People)
	assert.Empty(t, again.Items[0].AssignedTo)
}

func TestScan(t *testing.T) {
	tax := 190.0
	total := 4190.0
	ex := &fakeExtractor{draft: &ocr.Draft{
		Items: []ocr.DraftItem{
			{Name: "Pizza", Price: 1000, Quantity: 3},
			{Name: "Bebida", Price: 1000, Quantity: 0},
		},
		Tax:   &tax,
		Total: &total,
	}}
	svc, store, _ := newTestService(t, WithExtractor(ex))

	bill, err := svc.Scan(context.Background(), []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	require.Len(t, bill.Items, 2)
	assert.Equal(t, 3, bill.Items[0].Quantity)
	assert.Equal(t, 1, bill.Items[1].Quantity)
	assert.Equal(t, []string{}, bill.Items[1].AssignedTo)
	assert.NotEqual(t, bill.Items[0].ID, bill.Items[1].ID)
	assert.Equal(t, 4000.0, bill.Subtotal)
	assert.Equal(t, 190.0, bill.Tax)
	assert.Equal(t, 0.0, bill.Tip)
	assert.Equal(t, 4190.0, bill.Total)
	assert.Equal(t, models.DefaultTitle, bill.Title)

	assert.Equal(t, bill, store.stored(t, bill.ID))
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name     string
		ex       ocr.Extractor
		image    []byte
		mime     string
		wantKind Kind
	}{
		{"not an image", &fakeExtractor{draft: &ocr.Draft{}}, []byte("%PDF"), "application/pdf", KindInvalidInput},
		{"empty image", &fakeExtractor{draft: &ocr.Draft{}}, nil, "image/png", KindInvalidInput},
		{"no engine", nil, []byte("png"), "image/png", KindExtractionFailure},
		{"engine error", &fakeExtractor{err: errors.New("quota exceeded")}, []byte("png"), "image/png", KindExtractionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.ex != nil {
				opts = append(opts, WithExtractor(tt.ex))
			}
			svc, store, _ := newTestService(t, opts...)

			_, err := svc.Scan(context.Background(), tt.image, tt.mime)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Empty(t, store.bills)
		})
	}
}

func TestScan_ExtractionMessage(t *testing.T) {
	svc, _, _ := newTestService(t, WithExtractor(&fakeExtractor{err: errors.New("quota exceeded")}))

	_, err := svc.Scan(context.Background(), []byte("png"), "image/png")
	assert.Equal(t, "Error processing image with fake: quota exceeded", MessageOf(err))
}

func TestList(t *testing.T) {
	svc, store, c := newTestService(t)
	ctx := context.Background()

	older := models.NewBill("aaaa0001", "Older", testNow.Add(-time.Hour))
	newer := models.NewBill("bbbb0001", "Newer", testNow)
	tie := models.NewBill("aaaa0002", "Tie", testNow)
	for _, b := range []*models.Bill{older, newer, tie} {
		store.put(b)
	}

	// A cached edit must not be replaced by the stored copy.
	cached := older.Clone()
	cached.Title = "Cached title"
	c.Put(cached)

	summaries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "aaaa0002", summaries[0].ID)
	assert.Equal(t, "bbbb0001", summaries[1].ID)
	assert.Equal(t, "aaaa0001", summaries[2].ID)
	assert.Equal(t, "Cached title", summaries[2].Title)
	assert.Equal(t, 3, c.Len())
}

func TestList_StorageFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.loadErr = errors.New("connection refused")

	_, err := svc.List(context.Background())
	assert.Equal(t, KindStorageFailure, KindOf(err))
}

func TestDelete(t *testing.T) {
	svc, store, c := newTestService(t)
	ctx := context.Background()
	seedBill(t, store)
	_, err := svc.Get(ctx, "bill0001", false)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "bill0001"))
	assert.False(t, c.Has("bill0001"))
	assert.Empty(t, store.bills)

	err = svc.Delete(ctx, "bill0001")
	assert.ErrorIs(t, err, ErrBillNotFound)
}

func TestRefreshAll(t *testing.T) {
	svc, store, c := newTestService(t)
	seedBill(t, store)
	store.put(models.NewBill("bill0002", "", testNow))

	n, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, c.Has("bill0002"))
}

func TestRefresh_PicksUpExternalChanges(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seeded := seedBill(t, store)
	_, err := svc.Get(ctx, seeded.ID, false)
	require.NoError(t, err)

	external := seeded.Clone()
	external.People = []string{"Externa"}
	store.put(external)

	refreshed, err := svc.Refresh(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Externa"}, refreshed.People)

	cached, err := svc.Get(ctx, seeded.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Externa"}, cached.People)
}

func TestParticipantAndSplits(t *testing.T) {
	links := calculator.PaymentLinks{BaseURL: "https://fintoc.me", DefaultHandle: "default"}
	svc, store, _ := newTestService(t, WithPaymentLinks(links))
	ctx := context.Background()

	b := seedBill(t, store, "Ana", "Ben", "Cata")
	b.Items[0].AssignedTo = []string{"Ana", "Ana", "Ben"}
	b.Items[1].AssignedTo = []string{"Ben"}
	b.FintocUsername = "cena"
	b.Recalculate()
	store.put(b)

	view, err := svc.Participant(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Ana": 2000, "Ben": 1500, "Cata": 0}, view.PersonTotals)
	assert.Equal(t, map[string]string{
		"Ana": "https://fintoc.me/cena/2000",
		"Ben": "https://fintoc.me/cena/1500",
	}, view.PaymentLinks)

	split, err := svc.CalculateSplits(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, split.BillID)
	assert.Equal(t, 3500.0, split.BillTotal)
	assert.Equal(t, 3500.0, split.AssignedTotal)

	_, err = svc.CalculateSplits(ctx, "missing")
	assert.ErrorIs(t, err, ErrBillNotFound)
}

func TestStatus(t *testing.T) {
	svc, _, _ := newTestService(t, WithExtractor(&fakeExtractor{}))
	report := svc.Status()
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "fake", report.OCREngine)
	assert.Equal(t, "unknown", report.StorageMode)

	store := newMemStore()
	adapter := storage.NewAdapter(store, storage.ModeSQLite, nil, storage.RetryPolicy{MaxAttempts: 1})
	report = NewBillService(adapter, cache.New()).Status()
	assert.Equal(t, "none", report.OCREngine)
	assert.Equal(t, "sqlite", report.StorageMode)
}
