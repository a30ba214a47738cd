package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region client

// Client speaks the Ollama-style HTTP API for both generation and embedding.
type Client struct {
	endpoint   string
	model      string
	embedModel string
	client     *http.Client
}

// NewClient creates a client. Empty arguments fall back to local defaults.
func NewClient(endpoint, model, embedModel string) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if embedModel == "" {
		embedModel = "embeddinggemma"
	}
	return &Client{
		endpoint:   endpoint,
		model:      model,
		embedModel: embedModel,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// #endregion client

// #region generate

// Generate renders the prompt context and requests a completion.
func (c *Client) Generate(ctx context.Context, pc PromptContext) (string, error) {
	req := generateRequest{
		Model:  c.model,
		Prompt: renderPrompt(pc),
		Stream: false,
	}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// renderPrompt flattens the steering context into a plain prompt. Formatting
// stays minimal: the state core steers through the control vector, not prose.
func renderPrompt(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current emotional tone: %s (intensity %.2f). Relationship stage: %s.\n",
		pc.DominantEmotion, pc.Intensity, pc.Stage)
	for _, g := range pc.Guidance {
		fmt.Fprintf(&b, "Guidance: %s\n", g)
	}
	for _, m := range pc.Memories {
		fmt.Fprintf(&b, "Relevant memory: %s\n", m)
	}
	fmt.Fprintf(&b, "\nUser: %s\nResponse:", pc.Message)
	return b.String()
}

// #endregion generate

// #region embed

// Embed requests an embedding and validates its shape before use.
func (c *Client) Embed(ctx context.Context, text string) (vector.Vec, error) {
	req := embedRequest{
		Model:  c.embedModel,
		Prompt: text,
	}
	var resp embedResponse
	if err := c.post(ctx, "/api/embeddings", req, &resp); err != nil {
		return vector.Vec{}, err
	}

	v, err := vector.FromSlice(resp.Embedding)
	if err != nil {
		return vector.Vec{}, fmt.Errorf("embedding shape: %w", err)
	}
	return vector.Normalize(v)
}

// #endregion embed

// #region transport

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// #endregion transport
