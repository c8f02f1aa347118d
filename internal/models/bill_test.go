package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBill(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBill("abc12345", "  ", created)

	assert.Equal(t, DefaultTitle, b.Title)
	assert.Equal(t, StatusDraft, b.Status)
	assert.False(t, b.Locked)
	assert.Equal(t, "2025-03-01T12:00:00Z", b.CreatedAt)

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items":[]`)
	assert.Contains(t, string(data), `"people":[]`)
	assert.Contains(t, string(data), `"paid_by":[]`)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", DefaultTitle},
		{"trimmed", "  Cena  ", "Cena"},
		{"truncated", strings.Repeat("ñ", MaxTitleLength+5), strings.Repeat("ñ", MaxTitleLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTitle(tt.input))
		})
	}
}

func TestRecalculate(t *testing.T) {
	t.Run("derives tip from percent", func(t *testing.T) {
		b := &Bill{
			Items: []BillItem{
				{ID: "1", Price: 1000, Quantity: 2},
				{ID: "2", Price: 500, Quantity: 1},
			},
			Tax:        100,
			Tip:        999,
			TipPercent: 10,
		}
		b.Recalculate()

		assert.InDelta(t, 2500.0, b.Subtotal, 0.001)
		assert.InDelta(t, 250.0, b.Tip, 0.001)
		assert.InDelta(t, 2850.0, b.Total, 0.001)
	})

	t.Run("keeps stored tip without percent", func(t *testing.T) {
		b := &Bill{Items: []BillItem{{ID: "1", Price: 100, Quantity: 1}}, Tip: 7}
		b.Recalculate()

		assert.InDelta(t, 7.0, b.Tip, 0.001)
		assert.InDelta(t, 107.0, b.Total, 0.001)
	})

	t.Run("idempotent", func(t *testing.T) {
		b := &Bill{
			Items:      []BillItem{{ID: "1", Price: 33.33, Quantity: 3}},
			Tax:        12.5,
			TipPercent: 15,
		}
		once := b.Recalculate().Clone()
		b.Recalculate()

		assert.Equal(t, once.Subtotal, b.Subtotal)
		assert.Equal(t, once.Tip, b.Tip)
		assert.Equal(t, once.Total, b.Total)
	})
}

func TestNormalize(t *testing.T) {
	var b Bill
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","items":[{"id":"i","price":5}]}`), &b))

	b.Normalize()

	assert.Equal(t, DefaultTitle, b.Title)
	assert.Equal(t, StatusDraft, b.Status)
	assert.NotNil(t, b.People)
	assert.NotNil(t, b.PaidBy)
	assert.Equal(t, 1, b.Items[0].Quantity)
	assert.NotNil(t, b.Items[0].AssignedTo)
}

func TestClone(t *testing.T) {
	b := &Bill{
		People: []string{"Ana"},
		Items:  []BillItem{{ID: "1", AssignedTo: []string{"Ana"}}},
	}
	c := b.Clone()
	c.People[0] = "Beto"
	c.Items[0].AssignedTo[0] = "Beto"

	assert.Equal(t, "Ana", b.People[0])
	assert.Equal(t, "Ana", b.Items[0].AssignedTo[0])
}

func TestRemovePerson(t *testing.T) {
	b := &Bill{
		People: []string{"Ana", "Beto"},
		PaidBy: []string{"Ana"},
		Items: []BillItem{
			{ID: "1", Quantity: 3, AssignedTo: []string{"Ana", "Beto", "Ana"}},
			{ID: "2", Quantity: 1, AssignedTo: []string{"Ana"}},
		},
	}

	require.True(t, b.RemovePerson("Ana"))

	assert.Equal(t, []string{"Beto"}, b.People)
	assert.Empty(t, b.PaidBy)
	assert.Equal(t, []string{"Beto"}, b.Items[0].AssignedTo)
	assert.Empty(t, b.Items[1].AssignedTo)

	assert.False(t, b.RemovePerson("Ana"))
}

func TestSetStatus(t *testing.T) {
	b := &Bill{Status: StatusDraft}

	b.SetStatus(StatusReady)
	assert.True(t, b.Locked)

	b.SetStatus(StatusClosed)
	assert.True(t, b.Locked)

	b.SetStatus(StatusDraft)
	assert.False(t, b.Locked)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"draft", "ready", "closed"} {
		got, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), got)
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)
}

func TestClaimsAndRemoveOne(t *testing.T) {
	it := BillItem{AssignedTo: []string{"Ana", "Beto", "Ana"}}
	assert.Equal(t, 2, it.Claims("Ana"))

	it.AssignedTo = RemoveOne(it.AssignedTo, "Ana")
	assert.Equal(t, []string{"Beto", "Ana"}, it.AssignedTo)
	assert.Equal(t, 1, it.Claims("Ana"))
}
