package llm

import "context"

// Line is one transcript message handed to a summarizer
type Line struct {
	Role    string
	Content string
}

// Request contains completion parameters
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response contains LLM generation result
type Response struct {
	Text       string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Complete runs a single-turn completion
	Complete(ctx context.Context, req Request, model string) (*Response, error)
}
