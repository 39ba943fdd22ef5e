package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK. Requests with
// WebSearch set are grounded with the Google Search tool.
type GeminiProvider struct {
	mu     sync.Mutex
	apiKey string
	client *genai.Client
}

// NewGeminiProvider creates a provider, reading the key from apiKeyEnv.
func NewGeminiProvider(apiKeyEnv string) *GeminiProvider {
	return &GeminiProvider{apiKey: os.Getenv(apiKeyEnv)}
}

func (g *GeminiProvider) Kind() Kind { return Gemini }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.apiKey != ""
}

// SetAPIKey swaps the key; the client is rebuilt on the next request.
func (g *GeminiProvider) SetAPIKey(key string) {
	g.mu.Lock()
	g.apiKey = strings.TrimSpace(key)
	g.client = nil
	g.mu.Unlock()
}

// Client returns the cached SDK client, creating it for the current key.
func (g *GeminiProvider) Client(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate sends a prompt and returns the concatenated text parts.
func (g *GeminiProvider) Generate(ctx context.Context, model string, req Request) (string, error) {
	client, err := g.Client(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	// Grounding tools cannot be combined with a JSON response MIME type.
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}
