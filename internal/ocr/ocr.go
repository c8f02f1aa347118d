// Package ocr turns receipt images into draft bills.
//
// An Extractor is selected once at startup (see New) and injected into the
// bill service. Vision-model engines are asked for JSON; the local engine
// parses Tesseract's plain text output.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Engine names.
const (
	EngineOpenAI    = "openai"
	EngineGemini    = "gemini"
	EngineTesseract = "tesseract"
)

// ErrNoItems is returned when a response holds no JSON object.
var ErrNoItems = errors.New("no JSON object in response")

// Extractor reads a receipt image.
type Extractor interface {
	// Name identifies the engine, e.g. "openai".
	Name() string

	// Extract returns the receipt lines and printed amounts.
	Extract(ctx context.Context, image []byte, mimeType string) (*Draft, error)
}

// Draft is an extracted receipt. Amounts that were not found are nil.
type Draft struct {
	Items    []DraftItem
	Subtotal *float64
	Tax      *float64
	Tip      *float64
	Total    *float64
}

// DraftItem is one extracted receipt line.
type DraftItem struct {
	Name     string
	Price    float64
	Quantity int
}

// receiptPrompt asks vision models for the JSON shape decoded by parseDraft.
const receiptPrompt = `Analyze this receipt/bill image and extract all items with their prices.

Return ONLY a valid JSON object (no markdown, no explanation) with this structure:
{
    "items": [
        {"name": "Item name", "price": 1000, "quantity": 1}
    ],
    "subtotal": 5000,
    "tax": 950,
    "tip": 0,
    "total": 5950
}

Rules:
- List every item you can see with its unit price
- Prices must be numbers, not strings
- Include tax (IVA, impuesto) if shown separately
- Include tip (propina, servicio) if shown
- Omit values you cannot determine`

// simplePrompt is the fallback used when a model refuses the full prompt.
const simplePrompt = `List all items and prices from this receipt as JSON: {"items": [{"name": "...", "price": 0}], "total": 0}`

type rawDraft struct {
	Items []struct {
		Name     string   `json:"name"`
		Price    float64  `json:"price"`
		Quantity *float64 `json:"quantity"`
	} `json:"items"`
	Subtotal *float64 `json:"subtotal"`
	Tax      *float64 `json:"tax"`
	Tip      *float64 `json:"tip"`
	Total    *float64 `json:"total"`
}

// parseDraft decodes a model response, tolerating markdown code fences and
// surrounding prose.
func parseDraft(text string) (*Draft, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, ErrNoItems
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bill data: %w", err)
	}

	draft := &Draft{
		Subtotal: raw.Subtotal,
		Tax:      raw.Tax,
		Tip:      raw.Tip,
		Total:    raw.Total,
	}
	for _, it := range raw.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		qty := 1
		if it.Quantity != nil && *it.Quantity >= 1 {
			qty = int(math.Round(*it.Quantity))
		}
		draft.Items = append(draft.Items, DraftItem{Name: name, Price: it.Price, Quantity: qty})
	}
	return draft, nil
}

// extractJSON returns the JSON object in text, unwrapping ``` fences.
func extractJSON(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		text, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(text, "```"); ok {
		text, _, _ = strings.Cut(after, "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
