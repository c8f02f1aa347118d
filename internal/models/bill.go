package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitle is used when a bill is created without a title.
	DefaultTitle = "Boleta"

	// MaxTitleLength is the maximum title length in runes.
	MaxTitleLength = 80
)

// Status is the lifecycle state of a bill.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusReady  Status = "ready"
	StatusClosed Status = "closed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusReady, StatusClosed:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q: must be one of draft, ready, closed", s)
}

// Locks reports whether a bill in this status must be locked.
func (s Status) Locks() bool {
	return s == StatusReady || s == StatusClosed
}

// Bill is the shared document for one receipt-splitting session.
type Bill struct {
	// ID is the short random identifier used in share links.
	ID string `json:"id"`

	// Title is the display name, at most MaxTitleLength runes.
	Title string `json:"title"`

	// Items are the receipt lines in display order.
	Items []BillItem `json:"items"`

	Subtotal   float64 `json:"subtotal"`
	Tax        float64 `json:"tax"`
	Tip        float64 `json:"tip"`
	TipPercent float64 `json:"tip_percent"`
	Total      float64 `json:"total"`

	// People are the participant names, unique, in join order.
	People []string `json:"people"`

	// PaidBy lists the participants who already settled their share.
	PaidBy []string `json:"paid_by"`

	// Locked blocks structural and financial edits.
	Locked bool   `json:"locked"`
	Status Status `json:"status"`

	// CreatedAt is an ISO-8601 timestamp.
	CreatedAt string `json:"created_at"`

	// FintocUsername is the payment handle used for links. Empty falls back
	// to the server-wide default.
	FintocUsername string `json:"fintoc_username"`
}

// BillItem is a single receipt line.
type BillItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`

	// AssignedTo holds one entry per claimed unit, so a name can repeat.
	AssignedTo []string `json:"assigned_to"`
}

// NewBill returns an empty draft bill.
func NewBill(id, title string, createdAt time.Time) *Bill {
	return &Bill{
		ID:        id,
		Title:     CleanTitle(title),
		Items:     []BillItem{},
		People:    []string{},
		PaidBy:    []string{},
		Status:    StatusDraft,
		CreatedAt: createdAt.Format(time.RFC3339),
	}
}

// CleanTitle trims the title, applies the default and truncates to
// MaxTitleLength runes.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}
	return title
}

// LineTotal is price times quantity.
func (it *BillItem) LineTotal() float64 {
	return it.Price * float64(it.Quantity)
}

// Claims counts the units claimed by person.
func (it *BillItem) Claims(person string) int {
	n := 0
	for _, p := range it.AssignedTo {
		if p == person {
			n++
		}
	}
	return n
}

// Recalculate refreshes Subtotal, Tip and Total from the items, in that
// order. Tip is only derived when TipPercent is positive; otherwise the
// stored tip is kept. Applying it more than once has no further effect.
func (b *Bill) Recalculate() *Bill {
	subtotal := 0.0
	for i := range b.Items {
		subtotal += b.Items[i].LineTotal()
	}
	b.Subtotal = subtotal

	if b.TipPercent > 0 {
		b.Tip = b.Subtotal * (b.TipPercent / 100)
	}

	b.Total = b.Subtotal + b.Tax + b.Tip
	return b
}

// Normalize fills defaults on documents that came from storage or clients.
func (b *Bill) Normalize() {
	if b.Items == nil {
		b.Items = []BillItem{}
	}
	for i := range b.Items {
		if b.Items[i].Quantity < 1 {
			b.Items[i].Quantity = 1
		}
		if b.Items[i].AssignedTo == nil {
			b.Items[i].AssignedTo = []string{}
		}
	}
	if b.People == nil {
		b.People = []string{}
	}
	if b.PaidBy == nil {
		b.PaidBy = []string{}
	}
	if strings.TrimSpace(b.Title) == "" {
		b.Title = DefaultTitle
	}
	if b.Status == "" {
		b.Status = StatusDraft
	}
}

// Clone returns a deep copy.
func (b *Bill) Clone() *Bill {
	if b == nil {
		return nil
	}
	c := *b
	c.Items = make([]BillItem, len(b.Items))
	for i, it := range b.Items {
		it.AssignedTo = slices.Clone(it.AssignedTo)
		if it.AssignedTo == nil {
			it.AssignedTo = []string{}
		}
		c.Items[i] = it
	}
	c.People = slices.Clone(b.People)
	c.PaidBy = slices.Clone(b.PaidBy)
	if c.People == nil {
		c.People = []string{}
	}
	if c.PaidBy == nil {
		c.PaidBy = []string{}
	}
	return &c
}

// FindItem returns a pointer into Items, or nil.
func (b *Bill) FindItem(id string) *BillItem {
	for i := range b.Items {
		if b.Items[i].ID == id {
			return &b.Items[i]
		}
	}
	return nil
}

// HasPerson reports whether name is a participant.
func (b *Bill) HasPerson(name string) bool {
	return slices.Contains(b.People, name)
}

// RemovePerson drops name from People, every item's AssignedTo (all
// occurrences) and PaidBy. It reports whether the person was present.
func (b *Bill) RemovePerson(name string) bool {
	if !b.HasPerson(name) {
		return false
	}
	b.People = removeAll(b.People, name)
	for i := range b.Items {
		b.Items[i].AssignedTo = removeAll(b.Items[i].AssignedTo, name)
	}
	b.PaidBy = removeAll(b.PaidBy, name)
	return true
}

// SetStatus moves the bill to s and keeps Locked in sync.
func (b *Bill) SetStatus(s Status) {
	b.Status = s
	b.Locked = s.Locks()
}

// Summary is the list view of a bill.
type Summary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ItemsCount  int     `json:"items_count"`
	PeopleCount int     `json:"people_count"`
	Total       float64 `json:"total"`
	Status      Status  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// Summarize builds the list view.
func (b *Bill) Summarize() Summary {
	return Summary{
		ID:          b.ID,
		Title:       b.Title,
		ItemsCount:  len(b.Items),
		PeopleCount: len(b.People),
		Total:       b.Total,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
	}
}

func removeAll(list []string, name string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == name })
}

// RemoveOne drops the first occurrence of name.
func RemoveOne(list []string, name string) []string {
	if i := slices.Index(list, name); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}
