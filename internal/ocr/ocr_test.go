package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantItems []DraftItem
		wantTotal *float64
		wantErr   bool
	}{
		{
			name:      "plain json",
			text:      `{"items":[{"name":"Pizza","price":12000,"quantity":2}],"total":24000}`,
			wantItems: []DraftItem{{Name: "Pizza", Price: 12000, Quantity: 2}},
			wantTotal: ptr(24000),
		},
		{
			name:      "fenced json with prose",
			text:      "Here is the receipt:\n```json\n{\"items\":[{\"name\":\"Cafe\",\"price\":2500}]}\n```\nDone.",
			wantItems: []DraftItem{{Name: "Cafe", Price: 2500, Quantity: 1}},
		},
		{
			name:      "bare fence",
			text:      "```\n{\"items\":[{\"name\":\" Te \",\"price\":1500,\"quantity\":0}]}\n```",
			wantItems: []DraftItem{{Name: "Te", Price: 1500, Quantity: 1}},
		},
		{
			name:      "empty names skipped",
			text:      `{"items":[{"name":"","price":100},{"name":"Pan","price":900,"quantity":1.6}]}`,
			wantItems: []DraftItem{{Name: "Pan", Price: 900, Quantity: 2}},
		},
		{
			name:    "no json",
			text:    "I cannot read this receipt.",
			wantErr: true,
		},
		{
			name:    "broken json",
			text:    `{"items": [}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := parseDraft(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItems, draft.Items)
			assert.Equal(t, tt.wantTotal, draft.Total)
		})
	}
}

func TestParseReceiptText(t *testing.T) {
	text := `Boleta electronica 123
RESTAURANTE EL PUERTO
Lomo saltado 12.990
Pisco sour x2 7.500
Ensalada $4.500
SUBTOTAL 24.990
IVA 3.990
Propina 10% 2.499
TOTAL 31.479
Gracias por su visita`

	draft := parseReceiptText(text)

	assert.Equal(t, []DraftItem{
		{Name: "Lomo saltado", Price: 12990, Quantity: 1},
		{Name: "Pisco sour", Price: 7500, Quantity: 1},
		{Name: "Ensalada", Price: 4500, Quantity: 1},
	}, draft.Items)
	require.NotNil(t, draft.Subtotal)
	assert.Equal(t, 24990.0, *draft.Subtotal)
	require.NotNil(t, draft.Tax)
	assert.Equal(t, 3990.0, *draft.Tax)
	require.NotNil(t, draft.Tip)
	assert.Equal(t, 2499.0, *draft.Tip)
	require.NotNil(t, draft.Total)
	assert.Equal(t, 31479.0, *draft.Total)
}

func TestParseReceiptText_NoAmounts(t *testing.T) {
	draft := parseReceiptText("Menu del dia\n\nab\n")
	assert.Empty(t, draft.Items)
	assert.Nil(t, draft.Subtotal)
	assert.Nil(t, draft.Total)
}

func TestLinePrice(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"Lomo 12.990", 12990, true},
		{"Lomo 12990", 12990, true},
		{"Cafe 1,50", 1.5, true},
		{"Total $25.000 CLP", 25000, true},
		{"Sin precio", 0, false},
		{"Cero 0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := linePrice(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no keys", Config{}, EngineTesseract},
		{"openai", Config{OpenAIKey: "sk-abcdefghijkl"}, EngineOpenAI},
		{"openai placeholder", Config{OpenAIKey: "sk-your-key-here"}, EngineTesseract},
		{"short openai key", Config{OpenAIKey: "sk-abc", GeminiKey: "AIzaSyABCDEFGH"}, EngineGemini},
		{"openai wins over gemini", Config{OpenAIKey: "sk-abcdefghijkl", GeminiKey: "AIzaSyABCDEFGH"}, EngineOpenAI},
		{"forced engine", Config{Engine: "Tesseract", OpenAIKey: "sk-abcdefghijkl"}, EngineTesseract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EngineFor(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	ex, err := New(Config{GeminiKey: "AIzaSyABCDEFGH"})
	require.NoError(t, err)
	assert.Equal(t, EngineGemini, ex.Name())

	_, err = New(Config{Engine: "paddle"})
	assert.Error(t, err)
}

func TestOpenAIClient_Extract(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openaiModel, req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "data:image/png;base64,aW1n", req.Messages[0].Content[1].ImageURL.URL)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` +
			"```json\\n{\\\"items\\\":[{\\\"name\\\":\\\"Pizza\\\",\\\"price\\\":9000}],\\\"tax\\\":1710}\\n```" +
			`"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.Client())
	c.baseURL = srv.URL

	draft, err := c.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, []DraftItem{{Name: "Pizza", Price: 9000, Quantity: 1}}, draft.Items)
	require.NotNil(t, draft.Tax)
	assert.Equal(t, 1710.0, *draft.Tax)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("bad-key", srv.Client())
	c.baseURL = srv.URL

	_, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API error (401): Incorrect API key provided")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"items\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.Client())
	c.baseURL = srv.URL

	draft, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, draft.Items)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient("", nil).Extract(context.Background(), []byte("img"), "image/png")
	assert.Error(t, err)
}

func TestGeminiClient_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+geminiModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, receiptPrompt, req.Contents[0].Parts[0].Text)
		assert.Equal(t, "image/jpeg", req.Contents[0].Parts[1].InlineData.MimeType)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"items\":[{\"name\":\"Empanada\",\"price\":2000,\"quantity\":3}]"},{"text":",\"total\":6000}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.Client())
	c.baseURL = srv.URL

	draft, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, []DraftItem{{Name: "Empanada", Price: 2000, Quantity: 3}}, draft.Items)
	assert.Equal(t, ptr(6000), draft.Total)
}

func TestGeminiClient_BlockedRetriesWithSimplePrompt(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Contents[0].Parts[0].Text)

		if len(prompts) == 1 {
			_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"OTHER"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"items\":[{\"name\":\"Te\",\"price\":1500}]}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.Client())
	c.baseURL = srv.URL

	draft, err := c.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, []string{receiptPrompt, simplePrompt}, prompts)
	assert.Equal(t, []DraftItem{{Name: "Te", Price: 1500, Quantity: 1}}, draft.Items)
}

func TestGeminiClient_BlockedTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.Client())
	c.baseURL = srv.URL

	_, err := c.Extract(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBlocked)
}

func TestGeminiClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.Client())
	c.baseURL = srv.URL

	_, err := c.Extract(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gemini API error (400): API key not valid")
}

func ptr(v float64) *float64 { return &v }
