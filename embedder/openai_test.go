package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// openaiTestResponse builds a response with one embedding per input, emitted
// in reverse index order to exercise the re-ordering logic.
func openaiTestResponse(n int) map[string]any {
	data := make([]map[string]any, 0, n)
	for i := n - 1; i >= 0; i-- {
		data = append(data, map[string]any{
			"embedding": []float32{float32(i), 0},
			"index":     i,
		})
	}
	return map[string]any{"data": data}
}

func Test_OpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("want bearer auth, got %q", got)
		}
		var req openaiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(openaiTestResponse(len(req.Input)))
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "text-embedding-3-small",
	})

	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("embedding %d not re-ordered by index: %v", i, v)
		}
	}
}

func Test_OpenAIEmbedder_AzureAuthHeader(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-key"); got != "azure-key" {
			t.Errorf("want api-key header, got %q", got)
		}
		if got := r.URL.Query().Get("api-version"); got != "2025-04-01-preview" {
			t.Errorf("want api-version query param, got %q", got)
		}
		json.NewEncoder(w).Encode(openaiTestResponse(1))
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "azure-key",
		Model:      "text-embedding-3-small",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})

	if _, err := emb.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
}

func Test_OpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key"},
		})
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"})

	if _, err := emb.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("want error for HTTP 401, got nil")
	}
}
