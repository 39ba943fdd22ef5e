package llm

import (
	"context"
	"strings"
)

// Kind names an LLM backend.
type Kind string

const (
	// Gemini is the web-search capable backend (Google Search grounding).
	Gemini Kind = "gemini"
	// OpenAI is the plain chat-completion backend (any OpenAI-compatible API).
	OpenAI Kind = "openai"
	// Mock serves canned responses when calls are disabled or the budget is spent.
	Mock Kind = "mock"
)

// ParseKind maps a configured provider name onto a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "openrouter", "chat":
		return OpenAI
	case "mock":
		return Mock
	default:
		return Gemini
	}
}

// Tasks let the mock backend pick a canned response shape.
const (
	TaskDiscovery = "discovery"
	TaskEvidence  = "evidence"
	TaskRAG       = "rag"
	TaskEvaluate  = "evaluate"
)

// Request is a single prompt sent to a backend.
type Request struct {
	Task      string
	Prompt    string
	WebSearch bool
	JSON      bool
	MaxTokens int
	// Model overrides model resolution for this request only.
	Model string
	// Provider pins the request to a backend; empty uses the active one.
	Provider Kind
	// Meta carries prompt variables the mock backend echoes back.
	Meta map[string]string
}

// Response is the text a backend returned.
type Response struct {
	Text     string
	Provider Kind
	Model    string
}

// Mocked reports whether the response came from the offline backend.
func (r *Response) Mocked() bool {
	return r != nil && r.Provider == Mock
}

// Provider is the interface for LLM backends.
type Provider interface {
	Kind() Kind
	Generate(ctx context.Context, model string, req Request) (string, error)
	IsConfigured() bool
	SetAPIKey(key string)
}

// Generator is what pipeline stages depend on; *Runtime implements it.
type Generator interface {
	GenerateContent(ctx context.Context, label string, req Request) (*Response, error)
}
