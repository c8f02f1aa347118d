// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mmynk/divvy/internal/ocr"
	"github.com/mmynk/divvy/internal/storage"
)

// Config holds every setting of the server. Field tags name the environment
// variable and its default.
type Config struct {
	Port       int    `envconfig:"PORT" default:"8000"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	StaticPath string `envconfig:"STATIC_PATH" default:"./static"`

	// Storage. DATABASE_URL wins over DB_PATH; with neither set bills live
	// in BILLS_FILE only.
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	DBPath             string        `envconfig:"DB_PATH"`
	BillsFile          string        `envconfig:"BILLS_FILE" default:"./data/bills.json"`
	StorageMaxAttempts int           `envconfig:"STORAGE_MAX_ATTEMPTS" default:"3"`
	StorageRetryStep   time.Duration `envconfig:"STORAGE_RETRY_STEP" default:"500ms"`

	CacheAlwaysFresh    bool   `envconfig:"CACHE_ALWAYS_FRESH" default:"false"`
	CacheResyncSchedule string `envconfig:"CACHE_RESYNC_SCHEDULE"`

	FintocUsername  string `envconfig:"FINTOC_USERNAME"`
	PaymentLinkBase string `envconfig:"PAYMENT_LINK_BASE" default:"https://fintoc.me"`

	AppPassword string        `envconfig:"APP_PASSWORD"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"720h"`

	OCREngine      string        `envconfig:"OCR_ENGINE"`
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GoogleAPIKey   string        `envconfig:"GOOGLE_API_KEY"`
	TesseractPath  string        `envconfig:"TESSERACT_PATH" default:"tesseract"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	OCRTimeout     time.Duration `envconfig:"OCR_TIMEOUT" default:"60s"`
}

// Load reads .env files (default ".env") into the environment, without
// overriding variables that are already set, and then processes Config.
// Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.StorageMaxAttempts < 1 {
		return fmt.Errorf("STORAGE_MAX_ATTEMPTS must be at least 1, got %d", c.StorageMaxAttempts)
	}
	if c.StorageRetryStep < 0 {
		return fmt.Errorf("STORAGE_RETRY_STEP cannot be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	switch strings.ToLower(c.OCREngine) {
	case "", ocr.EngineOpenAI, ocr.EngineGemini, ocr.EngineTesseract:
	default:
		return fmt.Errorf("unknown OCR_ENGINE %q", c.OCREngine)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GeminiKey returns GEMINI_API_KEY, or GOOGLE_API_KEY when it is unset.
func (c *Config) GeminiKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.GoogleAPIKey
}

// StorageMode reports which primary store the settings select.
func (c *Config) StorageMode() storage.Mode {
	switch {
	case c.DatabaseURL != "":
		return storage.ModeRemote
	case c.DBPath != "":
		return storage.ModeSQLite
	default:
		return storage.ModeLocalFile
	}
}

// RetryPolicy builds the storage retry policy.
func (c *Config) RetryPolicy() storage.RetryPolicy {
	return storage.RetryPolicy{
		MaxAttempts: c.StorageMaxAttempts,
		Step:        c.StorageRetryStep,
	}
}

// OCR builds the OCR engine settings.
func (c *Config) OCR() ocr.Config {
	return ocr.Config{
		Engine:        c.OCREngine,
		OpenAIKey:     c.OpenAIAPIKey,
		GeminiKey:     c.GeminiKey(),
		TesseractPath: c.TesseractPath,
		Timeout:       c.OCRTimeout,
	}
}

// PasswordRequired reports whether owner endpoints need a token.
func (c *Config) PasswordRequired() bool {
	return c.AppPassword != ""
}
