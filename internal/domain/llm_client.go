package domain

import "context"

// Message is one turn of a chat exchange with the inference service.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ChatOptions tunes a single inference call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	// Format constrains the output shape; "json" forces valid JSON.
	Format string
}

// TokenUsage reports token consumption of an inference call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatResponse is the inference service's reply.
type ChatResponse struct {
	Content string
	Done    bool
	Usage   *TokenUsage
}

// StreamChunk is one incremental fragment of a streamed generation.
type StreamChunk struct {
	Content string
	Done    bool
	Usage   *TokenUsage
}

// LLMClient sends chat requests to the inference service.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
	ChatStream(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamChunk, <-chan error, error)
	Version() string
}
