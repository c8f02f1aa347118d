package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/mmynk/divvy/internal/models"
)

// AddPerson adds name to the bill. Adding an existing person is a no-op.
func (s *BillService) AddPerson(ctx context.Context, billID, name string) (*models.Bill, error) {
	name, err := cleanName(name)
	if err != nil {
		record("add_person", err)
		return nil, err
	}
	return s.mutate(ctx, "add_person", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		if !b.HasPerson(name) {
			b.People = append(b.People, name)
		}
		return nil
	})
}

// RemovePerson removes name from people, every item assignment and paid_by.
func (s *BillService) RemovePerson(ctx context.Context, billID, name string) (*models.Bill, error) {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, "remove_person", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		b.RemovePerson(name)
		return nil
	})
}

// AssignItem toggles one claim of name on an item.
// Only participants can be added; an existing claim can always be dropped.
func (s *BillService) AssignItem(ctx context.Context, billID, itemID, name string) (*models.Bill, error) {
	name, err := cleanName(name)
	if err != nil {
		record("assign_item", err)
		return nil, err
	}
	return s.mutate(ctx, "assign_item", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		item := b.FindItem(itemID)
		if item == nil {
			return ErrItemNotFound
		}
		switch {
		case slices.Contains(item.AssignedTo, name):
			item.AssignedTo = models.RemoveOne(item.AssignedTo, name)
		case !b.HasPerson(name):
			return ErrNotParticipant
		default:
			item.AssignedTo = append(item.AssignedTo, name)
		}
		return nil
	})
}

// SelfAssignInput is a participant's claim on an item.
type SelfAssignInput struct {
	PersonName string
	ItemID     string
	Assigned   bool

	// Units is the number of units the person wants to hold after the call.
	Units int
}

// SelfAssign sets how many units of an item a participant claims. The target
// is capped by the units not claimed by anyone else, so the claims on an item
// never exceed its quantity. Releasing drops every claim of the person.
// Always reads fresh from storage.
func (s *BillService) SelfAssign(ctx context.Context, billID string, in SelfAssignInput) (*models.Bill, error) {
	return s.mutate(ctx, "self_assign", billID, true, func(b *models.Bill) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		item := b.FindItem(in.ItemID)
		if item == nil {
			return ErrItemNotFound
		}
		if !b.HasPerson(in.PersonName) {
			return ErrNotParticipant
		}

		if !in.Assigned {
			item.AssignedTo = slices.DeleteFunc(item.AssignedTo, func(p string) bool { return p == in.PersonName })
			return nil
		}

		current := item.Claims(in.PersonName)
		available := item.Quantity - (len(item.AssignedTo) - current)
		target := min(max(in.Units, 0), item.Quantity, max(available, 0))

		for ; current < target; current++ {
			item.AssignedTo = append(item.AssignedTo, in.PersonName)
		}
		for ; current > target; current-- {
			item.AssignedTo = models.RemoveOne(item.AssignedTo, in.PersonName)
		}
		return nil
	})
}

// Join adds a new participant from the shared link. Always reads fresh from
// storage. It returns the bill and the trimmed name.
func (s *BillService) Join(ctx context.Context, billID, name string) (*models.Bill, string, error) {
	name = strings.TrimSpace(name)
	bill, err := s.mutate(ctx, "join", billID, true, func(b *models.Bill) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		if name == "" {
			return ErrEmptyName
		}
		if b.HasPerson(name) {
			return ErrDuplicateName
		}
		b.People = append(b.People, name)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	slog.Info("Participant joined", "bill_id", billID, "person", name)
	return bill, name, nil
}

// UpdateTipTax sets the tip percentage and/or the tax. A nil value is left
// unchanged.
func (s *BillService) UpdateTipTax(ctx context.Context, billID string, tipPercent, tax *float64) (*models.Bill, error) {
	if (tipPercent != nil && *tipPercent < 0) || (tax != nil && *tax < 0) {
		record("update_tip_tax", ErrNegativeAmount)
		return nil, ErrNegativeAmount
	}
	return s.mutate(ctx, "update_tip_tax", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		if tipPercent != nil {
			b.TipPercent = *tipPercent
			b.Tip = b.Subtotal * (*tipPercent / 100)
		}
		if tax != nil {
			b.Tax = *tax
		}
		return nil
	})
}

// NewItem describes a manually added item.
type NewItem struct {
	Name     string
	Price    float64
	Quantity int
}

// AddItem appends an unassigned item. A zero quantity means one unit.
func (s *BillService) AddItem(ctx context.Context, billID string, in NewItem) (*models.Bill, error) {
	name := strings.TrimSpace(in.Name)
	var err error
	switch {
	case name == "":
		err = invalid("Item name cannot be empty")
	case in.Price < 0:
		err = ErrNegativeAmount
	case in.Quantity < 0:
		err = invalid("Quantity must be at least 1")
	}
	if err != nil {
		record("add_item", err)
		return nil, err
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}

	return s.mutate(ctx, "add_item", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		b.Items = append(b.Items, models.BillItem{
			ID:         s.newID(),
			Name:       name,
			Price:      in.Price,
			Quantity:   qty,
			AssignedTo: []string{},
		})
		return nil
	})
}

// DeleteItem removes an item and its claims.
func (s *BillService) DeleteItem(ctx context.Context, billID, itemID string) (*models.Bill, error) {
	return s.mutate(ctx, "delete_item", billID, false, func(b *models.Bill) error {
		if err := requireUnlocked(b); err != nil {
			return err
		}
		n := len(b.Items)
		b.Items = slices.DeleteFunc(b.Items, func(it models.BillItem) bool { return it.ID == itemID })
		if len(b.Items) == n {
			return ErrItemNotFound
		}
		return nil
	})
}

// UpdateTitle renames the bill. Allowed on locked bills.
func (s *BillService) UpdateTitle(ctx context.Context, billID, title string) (*models.Bill, error) {
	if strings.TrimSpace(title) == "" {
		err := invalid("Title cannot be empty")
		record("update_title", err)
		return nil, err
	}
	return s.mutate(ctx, "update_title", billID, false, func(b *models.Bill) error {
		b.Title = models.CleanTitle(title)
		return nil
	})
}

// UpdatePaymentHandle sets the bill's payment handle. Surrounding spaces and
// a leading @ are dropped; an empty handle falls back to the default.
func (s *BillService) UpdatePaymentHandle(ctx context.Context, billID, handle string) (*models.Bill, error) {
	handle = strings.TrimLeft(strings.TrimSpace(handle), "@")
	return s.mutate(ctx, "update_payment_handle", billID, false, func(b *models.Bill) error {
		b.FintocUsername = handle
		return nil
	})
}

// SetLocked sets the lock flag directly, without touching status.
func (s *BillService) SetLocked(ctx context.Context, billID string, locked bool) (*models.Bill, error) {
	return s.mutate(ctx, "set_locked", billID, false, func(b *models.Bill) error {
		b.Locked = locked
		return nil
	})
}

// MarkPaid adds or removes name from paid_by. Allowed on locked bills.
func (s *BillService) MarkPaid(ctx context.Context, billID, name string, paid bool) (*models.Bill, error) {
	return s.mutate(ctx, "mark_paid", billID, false, func(b *models.Bill) error {
		if !paid {
			b.PaidBy = slices.DeleteFunc(b.PaidBy, func(p string) bool { return p == name })
			return nil
		}
		if !b.HasPerson(name) {
			return ErrNotParticipant
		}
		if !slices.Contains(b.PaidBy, name) {
			b.PaidBy = append(b.PaidBy, name)
		}
		return nil
	})
}

// SetStatus moves the bill through draft, ready and closed, keeping the lock
// in sync. Reopening a closed bill is allowed.
func (s *BillService) SetStatus(ctx context.Context, billID, status string) (*models.Bill, error) {
	next, err := models.ParseStatus(status)
	if err != nil {
		err = invalid("Invalid status")
		record("set_status", err)
		return nil, err
	}
	return s.mutate(ctx, "set_status", billID, false, func(b *models.Bill) error {
		if b.Status == models.StatusClosed && next != models.StatusClosed {
			slog.Info("Reopening closed bill", "bill_id", b.ID, "status", next)
		}
		b.SetStatus(next)
		return nil
	})
}

// Restore saves a client snapshot of a bill after merging it with the stored
// version. Storage wins for the people list (when non-empty) and for the
// claims of items present in both (when non-empty); all other fields come
// from the snapshot. This is a fixed-priority merge, not a conflict-free one.
func (s *BillService) Restore(ctx context.Context, snapshot *models.Bill) (*models.Bill, error) {
	bill, err := s.restore(ctx, snapshot)
	record("restore", err)
	return bill, err
}

func (s *BillService) restore(ctx context.Context, snapshot *models.Bill) (*models.Bill, error) {
	if snapshot == nil || strings.TrimSpace(snapshot.ID) == "" {
		return nil, invalid("Bill id is required")
	}
	bill := snapshot.Clone()
	bill.Normalize()
	if _, err := models.ParseStatus(string(bill.Status)); err != nil {
		return nil, invalid("Invalid status")
	}
	if hasNegativeAmount(bill) {
		return nil, ErrNegativeAmount
	}
	// The lock always follows the status, whatever the snapshot says.
	bill.SetStatus(bill.Status)

	stored, err := s.load(ctx, bill.ID, true)
	switch {
	case err == nil:
		if len(stored.People) > 0 {
			bill.People = stored.People
		}
		for _, si := range stored.Items {
			if len(si.AssignedTo) == 0 {
				continue
			}
			if ci := bill.FindItem(si.ID); ci != nil {
				ci.AssignedTo = si.AssignedTo
			}
		}
	case KindOf(err) != KindNotFound:
		return nil, err
	}

	bill.Title = models.CleanTitle(bill.Title)
	bill.Recalculate()
	if err := s.save(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func hasNegativeAmount(b *models.Bill) bool {
	if b.Tax < 0 || b.Tip < 0 || b.TipPercent < 0 {
		return true
	}
	return slices.ContainsFunc(b.Items, func(it models.BillItem) bool { return it.Price < 0 })
}
