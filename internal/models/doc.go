// Package models defines the bill document shared by every participant of a
// split session.
//
// # Document
//
// A Bill is stored as a single JSON document keyed by its short ID. There is
// no relational decomposition: people, items and assignments all live inside
// the document and the whole document is rewritten on every change.
//
//   - Bill: the receipt being split, its money fields and lifecycle flags
//   - BillItem: one receipt line; AssignedTo repeats a name once per claimed unit
//
// Participants are identified by display name only (no user accounts).
//
// # Derived fields
//
// Subtotal, Tip (when TipPercent > 0) and Total are derived from the items and
// must be refreshed with Recalculate after any change to items, tax or tip.
//
// # Lifecycle
//
// Bills move between draft, ready and closed. Ready and closed bills are
// locked; returning to draft unlocks. Locked may also be toggled directly
// without touching the status.
package models
