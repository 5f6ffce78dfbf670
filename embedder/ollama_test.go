package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func Test_OllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("want model nomic-embed-text, got %q", req.Model)
		}
		out := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			out.Embeddings[i] = []float32{float32(i), 1, 2}
		}
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	vecs, err := emb.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("want 2 embeddings, got %d", len(vecs))
	}
	if vecs[1][0] != 1 {
		t.Errorf("embeddings not parallel to input: %v", vecs[1])
	}
}

func Test_OllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})

	if _, err := emb.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Error("want error for HTTP 500, got nil")
	}
}

func Test_OllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	if _, err := emb.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("want error for embedding count mismatch, got nil")
	}
}
