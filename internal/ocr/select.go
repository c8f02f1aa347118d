package ocr

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config selects and configures an engine.
type Config struct {
	// Engine forces an engine by name. Empty picks one from the keys.
	Engine string

	OpenAIKey     string
	GeminiKey     string
	TesseractPath string
	Timeout       time.Duration
}

// usableOpenAIKey rejects empty keys and the placeholder from .env.example.
func usableOpenAIKey(key string) bool {
	return len(key) > 10 && !strings.HasPrefix(key, "sk-your")
}

func usableGeminiKey(key string) bool {
	return len(key) > 10
}

// EngineFor returns the engine New would select for cfg.
func EngineFor(cfg Config) string {
	switch {
	case cfg.Engine != "":
		return strings.ToLower(cfg.Engine)
	case usableOpenAIKey(cfg.OpenAIKey):
		return EngineOpenAI
	case usableGeminiKey(cfg.GeminiKey):
		return EngineGemini
	default:
		return EngineTesseract
	}
}

// New returns the extractor for cfg. OpenAI is preferred over Gemini when both
// keys are usable; Tesseract is the keyless fallback.
func New(cfg Config) (Extractor, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch engine := EngineFor(cfg); engine {
	case EngineOpenAI:
		return NewOpenAIClient(cfg.OpenAIKey, httpClient), nil
	case EngineGemini:
		return NewGeminiClient(cfg.GeminiKey, httpClient), nil
	case EngineTesseract:
		return NewTesseractClient(cfg.TesseractPath), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", engine)
	}
}
