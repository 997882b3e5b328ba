package llm

import "context"

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type Message struct {
	Role    string
	Content string
}

// StreamFunc receives incremental output. Backends without token streaming
// call it exactly once with the full text, so consumers get one uniform
// contract.
type StreamFunc func(chunk string)

// Citation points at a grounding source used by a search-augmented backend.
type Citation struct {
	URI   string
	Title string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Content   string
	Citations []Citation
	Usage     *Usage
}

// LLM is a text-generation backend.
type LLM interface {
	Generate(ctx context.Context, systemInstruction string, history []Message, temperature float64, maxTokens int, onStream StreamFunc) (*Response, error)
	Provider() string
}
