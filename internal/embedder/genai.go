package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// genAI embeds through Google's Gemini embedding API. Used when no local
// model is available.
type genAI struct {
	client *genai.Client
	model  string
}

func newGenAI(apiKey, model string) (*genAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai embedder requires an API key")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &genAI{client: client, model: model}, nil
}

func (g *genAI) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}
