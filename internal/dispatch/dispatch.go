// Package dispatch routes a generation request to the right backend and
// normalizes whatever comes back into a single result shape. Backend
// failures surface as message content so the conversation keeps flowing;
// the caller decides whether to retry.
package dispatch

import (
	"context"
	"fmt"

	"github.com/bowerhall/reverie/internal/llm"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/postprocess"
)

// Request is one generation turn, already prompt-assembled.
type Request struct {
	System      string
	History     []llm.Message
	Temperature float64
	MaxTokens   int
	// Agentic routes to the search-grounded backend and skips status
	// extraction, since grounded output does not follow the protocol.
	Agentic bool
	// IsReroll suppresses score deltas during extraction so regenerating
	// a reply cannot double-count relationship changes.
	IsReroll bool
	OnStream llm.StreamFunc
}

// Result is the normalized outcome of one dispatch. Failed results carry
// the error text as Content and no extraction; nothing downstream mutates
// state from a failed turn.
type Result struct {
	Content    string
	Citations  []llm.Citation
	Usage      *llm.Usage
	Extraction *postprocess.Extraction
	Failed     bool
}

type Dispatcher struct {
	standard llm.LLM
	agentic  llm.LLM
}

// New builds a dispatcher. The agentic backend is optional; agentic
// requests fall back to the standard backend when none is configured.
func New(standard, agentic llm.LLM) *Dispatcher {
	return &Dispatcher{standard: standard, agentic: agentic}
}

// Generate runs the request to completion. It never returns an error: a
// backend failure is reported in the result itself so the transcript
// records what the user saw.
func (d *Dispatcher) Generate(ctx context.Context, req Request) *Result {
	backend := d.standard
	if req.Agentic && d.agentic != nil {
		backend = d.agentic
	}

	resp, err := backend.Generate(ctx, req.System, req.History,
		req.Temperature, req.MaxTokens, req.OnStream)
	if err != nil {
		logger.Error("generation failed", "provider", backend.Provider(), "error", err)
		content := fmt.Sprintf("(The reply could not be generated: %v)", err)
		if req.OnStream != nil {
			req.OnStream(content)
		}
		return &Result{Content: content, Failed: true}
	}

	res := &Result{
		Content:   resp.Content,
		Citations: resp.Citations,
		Usage:     resp.Usage,
	}
	if !req.Agentic {
		res.Extraction = postprocess.Parse(resp.Content, req.IsReroll)
	}
	return res
}
