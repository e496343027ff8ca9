package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"scientia/src/log"
)

const (
	DefaultURL = "http://localhost:11434/api"

	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultGenerateModel  = "llama3"
)

// EmbeddingRequest represents the request structure for embeddings
type EmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingResponse represents the response structure from embeddings
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// GenerateRequest represents the request structure for model generation
type GenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse represents the response structure from generation
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client represents an Ollama API client
type Client struct {
	httpClient     *http.Client
	baseURL        string
	embeddingModel string
	generateModel  string
}

type Option func(*Client)

func WithEmbeddingModel(model string) Option {
	return func(c *Client) { c.embeddingModel = model }
}

func WithGenerateModel(model string) Option {
	return func(c *Client) { c.generateModel = model }
}

// NewClient creates a new Ollama API client
func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		embeddingModel: DefaultEmbeddingModel,
		generateModel:  DefaultGenerateModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed generates an embedding vector for the given text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := EmbeddingRequest{
		Model:  c.embeddingModel,
		Prompt: text,
	}

	var result EmbeddingResponse
	if err := c.post(ctx, "/embeddings", reqBody, &result); err != nil {
		return nil, err
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %s", c.embeddingModel)
	}

	embedding32 := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding32[i] = float32(v)
	}

	return embedding32, nil
}

// Generate performs model generation with the given system instruction and
// prompt. Temperature and seed are pinned so the same prompt produces the
// same answer.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := GenerateRequest{
		Model:  c.generateModel,
		System: system,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0,
			"seed":        42,
		},
	}

	var result GenerateResponse
	if err := c.post(ctx, "/generate", reqBody, &result); err != nil {
		log.Error(err, "generation request failed", "model", c.generateModel)
		return "", err
	}

	if result.Response == "" {
		return "", fmt.Errorf("no response received from model %s", c.generateModel)
	}

	return result.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama returned %s: %s", resp.Status, bytes.TrimSpace(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}

	return nil
}
