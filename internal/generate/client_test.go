package generate

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region generate

func TestGenerateSendsPromptContext(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(generateResponse{Response: "hello back"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testmodel", "")
	text, err := c.Generate(context.Background(), PromptContext{
		Message:         "hi",
		DominantEmotion: emotion.Joy,
		Intensity:       0.7,
		Stage:           "developing",
		Guidance:        []string{"slow the disclosure pace"},
		Memories:        []string{"user likes hiking"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "hello back" {
		t.Fatalf("unexpected response %q", text)
	}
	for _, want := range []string{"joy", "developing", "slow the disclosure pace", "user likes hiking", "hi"} {
		if !strings.Contains(gotPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gotPrompt)
		}
	}
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.Generate(context.Background(), PromptContext{Message: "hi"}); err == nil {
		t.Fatalf("expected error on 500")
	}
}

// #endregion generate

// #region embed

func TestEmbedNormalizesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		emb := make([]float32, vector.Dim)
		emb[0] = 3
		emb[1] = 4
		json.NewEncoder(w).Encode(embedResponse{Embedding: emb})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	v, err := c.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if math.Abs(vector.Norm(v)-1) > 1e-6 {
		t.Fatalf("embedding not unit-norm: %f", vector.Norm(v))
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: make([]float32, 64)})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.Embed(context.Background(), "some text"); err == nil {
		t.Fatalf("expected dimension rejection")
	}
}

// #endregion embed
