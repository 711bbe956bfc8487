package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirect(t *testing.T) {
	var out map[string]string
	err := ExtractJSON(`{"title": "overview"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "overview", out["title"])
}

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Here is the result:\n```json\n{\"terms\": [\"cache\"]}\n```\nLet me know if you need more."
	var out struct {
		Terms []string `json:"terms"`
	}
	err := ExtractJSON(text, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache"}, out.Terms)
}

func TestExtractJSONBraceWindow(t *testing.T) {
	text := `The architecture consists of {"components": [{"id": "api"}]} as requested.`
	var out struct {
		Components []struct {
			ID string `json:"id"`
		} `json:"components"`
	}
	err := ExtractJSON(text, &out)
	require.NoError(t, err)
	require.Len(t, out.Components, 1)
	assert.Equal(t, "api", out.Components[0].ID)
}

func TestExtractJSONArrayWindow(t *testing.T) {
	text := "Sure! [\"a\", \"b\"] is the list."
	var out []string
	err := ExtractJSON(text, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestExtractJSONNoPayload(t *testing.T) {
	var out map[string]any
	assert.ErrorIs(t, ExtractJSON("no structured data here", &out), ErrNoJSONPayload)
	assert.ErrorIs(t, ExtractJSON("   ", &out), ErrNoJSONPayload)
}

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var gotAuth string
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(chatResponse("a short summary")))
	})

	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "test-model",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	text, err := p.Generate(context.Background(), GenerateRequest{
		System: "You summarize code.",
		Prompt: "Summarize main.go",
	})
	require.NoError(t, err)
	assert.Equal(t, "a short summary", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIProviderRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(chatResponse("recovered")))
	})

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text, err := p.Generate(ctx, GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProviderExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrProviderFailed)
}
