package calculator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/divvy/internal/models"
)

// DefaultPaymentBaseURL is the Fintoc link host.
const DefaultPaymentBaseURL = "https://fintoc.me"

// PersonSplit represents the calculated split for one person
type PersonSplit struct {
	Subtotal float64 // share of assigned item lines
	Extras   float64 // proportional share of tax + tip
	Total    float64
}

// Split is the settlement view of a bill.
type Split struct {
	BillID        string             `json:"bill_id"`
	PersonTotals  map[string]float64 `json:"person_totals"`
	PaymentLinks  map[string]string  `json:"payment_links"`
	BillTotal     float64            `json:"bill_total"`
	AssignedTotal float64            `json:"assigned_total"`
}

// CalculateSplit computes how much each participant owes, unrounded.
//
// Each item line (price × quantity) is divided by the number of entries in
// AssignedTo, so a name listed twice pays for two shares. Unassigned items
// and entries for names that are not participants are not billed to anyone.
// Tax and tip are then spread proportionally:
//
//	person_total = person_subtotal + (tax + tip) × person_subtotal / items_subtotal
//
// where items_subtotal is the sum of all item lines, assigned or not.
func CalculateSplit(bill *models.Bill) map[string]*PersonSplit {
	splits := make(map[string]*PersonSplit, len(bill.People))
	for _, p := range bill.People {
		splits[p] = &PersonSplit{}
	}

	itemsSubtotal := 0.0
	for i := range bill.Items {
		item := &bill.Items[i]
		itemsSubtotal += item.LineTotal()

		if len(item.AssignedTo) == 0 {
			continue
		}
		share := item.LineTotal() / float64(len(item.AssignedTo))
		for _, person := range item.AssignedTo {
			if split, ok := splits[person]; ok {
				split.Subtotal += share
			}
		}
	}

	extras := bill.Tax + bill.Tip
	for _, split := range splits {
		if itemsSubtotal > 0 {
			split.Extras = extras * (split.Subtotal / itemsSubtotal)
		}
		split.Total = split.Subtotal + split.Extras
	}

	return splits
}

// PersonTotals returns each participant's total rounded to cents.
func PersonTotals(bill *models.Bill) map[string]float64 {
	splits := CalculateSplit(bill)
	totals := make(map[string]float64, len(splits))
	for person, split := range splits {
		totals[person] = RoundCents(split.Total)
	}
	return totals
}

// PaymentLinks builds per-person payment URLs.
type PaymentLinks struct {
	// BaseURL is the provider host, e.g. https://fintoc.me.
	BaseURL string

	// DefaultHandle is used when the bill has no handle of its own.
	DefaultHandle string
}

// Handle picks the bill's handle or the default.
func (p PaymentLinks) Handle(bill *models.Bill) string {
	if bill.FintocUsername != "" {
		return bill.FintocUsername
	}
	return p.DefaultHandle
}

// Link formats a link for an integer amount.
func (p PaymentLinks) Link(handle string, amount int64) string {
	base := p.BaseURL
	if base == "" {
		base = DefaultPaymentBaseURL
	}
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(base, "/"), handle, amount)
}

// Build returns links for every person whose rounded amount is positive.
// No links are produced when no handle is configured.
func (p PaymentLinks) Build(bill *models.Bill, totals map[string]float64) map[string]string {
	links := make(map[string]string)
	handle := p.Handle(bill)
	if handle == "" {
		return links
	}
	for person, total := range totals {
		amount := RoundUnits(total)
		if amount <= 0 {
			continue
		}
		links[person] = p.Link(handle, amount)
	}
	return links
}

// Settle produces the full settlement view of a bill.
func Settle(bill *models.Bill, links PaymentLinks) *Split {
	totals := PersonTotals(bill)

	assigned := decimal.Zero
	for _, t := range totals {
		assigned = assigned.Add(decimal.NewFromFloat(t))
	}

	return &Split{
		BillID:        bill.ID,
		PersonTotals:  totals,
		PaymentLinks:  links.Build(bill, totals),
		BillTotal:     bill.Total,
		AssignedTotal: assigned.Round(2).InexactFloat64(),
	}
}

// RoundCents rounds to two decimals, half away from zero.
func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// RoundUnits rounds to the nearest whole currency unit.
func RoundUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Round(0).IntPart()
}
