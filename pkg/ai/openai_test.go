package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "gpt-test", body["model"])

			payload := map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "gpt-test",
				"choices": []map[string]interface{}{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]interface{}{"role": "assistant", "content": content},
				}},
				"usage": map[string]interface{}{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
			}
			_ = json.NewEncoder(w).Encode(payload)
		case "/v1/models":
			_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "gpt-test", "object": "model"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOpenAIModelGenerate(t *testing.T) {
	server := newOpenAITestServer(t, "  {\"mappings\": []}  ")
	defer server.Close()

	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "key", Model: "gpt-test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), GenerateRequest{SystemPrompt: "s", UserPrompt: "u", JSONMode: true})
	require.NoError(t, err)
	require.Equal(t, `{"mappings": []}`, out)
	require.True(t, model.HealthCheck(context.Background()))
}

func TestNewLanguageModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewLanguageModel(ProviderConfig{Provider: "mystery"}, nil, zerolog.Nop())
	require.Error(t, err)
}
