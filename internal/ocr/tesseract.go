package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultTesseractPath = "tesseract"
	tesseractLanguages   = "spa+eng"
	maxItemName          = 50
)

// TesseractClient runs the local tesseract binary and parses its text output
// line by line. It needs no API key.
type TesseractClient struct {
	path string
}

// NewTesseractClient creates a client for the tesseract binary at path.
func NewTesseractClient(path string) *TesseractClient {
	if path == "" {
		path = defaultTesseractPath
	}
	return &TesseractClient{path: path}
}

// Name implements Extractor.
func (c *TesseractClient) Name() string { return EngineTesseract }

// Extract implements Extractor.
func (c *TesseractClient) Extract(ctx context.Context, image []byte, _ string) (*Draft, error) {
	cmd := exec.CommandContext(ctx, c.path, "stdin", "stdout", "-l", tesseractLanguages)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	slog.Debug("Tesseract output", "bytes", stdout.Len())
	return parseReceiptText(stdout.String()), nil
}

var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?)\s*$`),
		regexp.MustCompile(`\$\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?)\b`),
		regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:CLP|clp)?$`),
	}
	trailingPrice    = regexp.MustCompile(`\s*\$?\s*\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?\s*$`)
	trailingQuantity = regexp.MustCompile(`\s*x?\s*\d+\s*$`)

	skipWords = []string{
		"boleta", "factura", "rut", "fecha", "hora", "ticket", "gracias",
		"vuelva", "pronto", "direccion", "telefono", "www", "http",
	}
	taxWords      = []string{"iva", "impuesto", "tax"}
	tipWords      = []string{"propina", "tip", "servicio"}
	subtotalWords = []string{"subtotal", "neto"}
	totalWords    = []string{"total", "suma", "pago"}
)

// parseReceiptText extracts items and amounts from OCR text. Lines without a
// positive price are ignored. Amounts that were not printed stay nil.
func parseReceiptText(text string) *Draft {
	draft := &Draft{}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < 3 {
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, skipWords) {
			continue
		}

		price, ok := linePrice(line)
		if !ok {
			continue
		}

		// subtotal before total: "subtotal" contains "total".
		switch {
		case containsAny(lower, taxWords):
			draft.Tax = &price
		case containsAny(lower, tipWords):
			draft.Tip = &price
		case containsAny(lower, subtotalWords):
			draft.Subtotal = &price
		case containsAny(lower, totalWords):
			draft.Total = &price
		default:
			name := trailingPrice.ReplaceAllString(line, "")
			name = strings.TrimSpace(trailingQuantity.ReplaceAllString(strings.TrimSpace(name), ""))
			if len(name) <= 1 {
				continue
			}
			if r := []rune(name); len(r) > maxItemName {
				name = string(r[:maxItemName])
			}
			draft.Items = append(draft.Items, DraftItem{Name: name, Price: price, Quantity: 1})
		}
	}
	return draft
}

// linePrice returns the first positive price found on line. Dots are read as
// thousands separators and commas as decimal points.
func linePrice(line string) (float64, bool) {
	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		s := strings.ReplaceAll(m[1], ".", "")
		s = strings.ReplaceAll(s, ",", ".")
		v, err := strconv.ParseFloat(s, 64)
		if err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
