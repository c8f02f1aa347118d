package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/divvy/internal/ocr"
	"github.com/mmynk/divvy/internal/storage"
)

var configKeys = []string{
	"PORT", "LOG_LEVEL", "STATIC_PATH", "DATABASE_URL", "DB_PATH", "BILLS_FILE",
	"STORAGE_MAX_ATTEMPTS", "STORAGE_RETRY_STEP", "CACHE_ALWAYS_FRESH",
	"CACHE_RESYNC_SCHEDULE", "FINTOC_USERNAME", "PAYMENT_LINK_BASE",
	"APP_PASSWORD", "JWT_SECRET", "TOKEN_TTL", "OCR_ENGINE", "OPENAI_API_KEY",
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "TESSERACT_PATH", "MAX_UPLOAD_BYTES",
	"OCR_TIMEOUT",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		if old, ok := os.LookupEnv(k); ok {
			require.NoError(t, os.Unsetenv(k))
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, "./data/bills.json", cfg.BillsFile)
	assert.Equal(t, 3, cfg.StorageMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.StorageRetryStep)
	assert.Equal(t, "https://fintoc.me", cfg.PaymentLinkBase)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.PasswordRequired())
	assert.Equal(t, storage.ModeLocalFile, cfg.StorageMode())
	assert.Equal(t, ocr.EngineTesseract, ocr.EngineFor(cfg.OCR()))
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/bills.db")
	t.Setenv("STORAGE_RETRY_STEP", "2s")
	t.Setenv("CACHE_ALWAYS_FRESH", "true")
	t.Setenv("APP_PASSWORD", "secret")
	t.Setenv("GOOGLE_API_KEY", "AIzaSyABCDEFGH")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, storage.ModeSQLite, cfg.StorageMode())
	assert.Equal(t, storage.RetryPolicy{MaxAttempts: 3, Step: 2 * time.Second}, cfg.RetryPolicy())
	assert.True(t, cfg.CacheAlwaysFresh)
	assert.True(t, cfg.PasswordRequired())
	assert.Equal(t, "AIzaSyABCDEFGH", cfg.GeminiKey())
	assert.Equal(t, ocr.EngineGemini, ocr.EngineFor(cfg.OCR()))

	t.Setenv("DATABASE_URL", "postgres://localhost/divvy")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, storage.ModeRemote, cfg.StorageMode())
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	content := "PORT=1234\nFINTOC_USERNAME=cena\nOCR_ENGINE=openai\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("FINTOC_USERNAME")
		os.Unsetenv("OCR_ENGINE")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	// Variables already in the environment win over the file.
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "cena", cfg.FintocUsername)
	assert.Equal(t, ocr.EngineOpenAI, cfg.OCREngine)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "not-a-number"},
		{"PORT", "70000"},
		{"STORAGE_MAX_ATTEMPTS", "0"},
		{"OCR_ENGINE", "paddle"},
		{"MAX_UPLOAD_BYTES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
