package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bowerhall/reverie/internal/llm"
)

type stubLLM struct {
	name    string
	content string
	err     error
	calls   int
}

func (s *stubLLM) Generate(ctx context.Context, system string, history []llm.Message, temperature float64, maxTokens int, onStream llm.StreamFunc) (*llm.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if onStream != nil {
		onStream(s.content)
	}
	return &llm.Response{Content: s.content}, nil
}

func (s *stubLLM) Provider() string { return s.name }

func TestStandardRouteExtractsStatus(t *testing.T) {
	reply := "She smiles.\n[CHARACTER STATUS]\nLocation: the garden\nRelationship: +2"
	d := New(&stubLLM{name: "stub", content: reply}, nil)

	res := d.Generate(context.Background(), Request{History: []llm.Message{{Role: "user", Content: "hi"}}})
	if res.Failed {
		t.Fatal("unexpected failure")
	}
	if res.Extraction == nil {
		t.Fatal("expected extraction on the standard route")
	}
	if res.Extraction.CharacterStatus == nil || res.Extraction.CharacterStatus.Location != "the garden" {
		t.Errorf("status not extracted: %+v", res.Extraction)
	}
}

func TestAgenticRouteSkipsExtraction(t *testing.T) {
	standard := &stubLLM{name: "standard", content: "plain"}
	agentic := &stubLLM{name: "agentic", content: "grounded answer\n[CHARACTER STATUS]\nLocation: nowhere"}
	d := New(standard, agentic)

	res := d.Generate(context.Background(), Request{Agentic: true})
	if agentic.calls != 1 || standard.calls != 0 {
		t.Fatalf("agentic request routed wrong: standard=%d agentic=%d", standard.calls, agentic.calls)
	}
	if res.Extraction != nil {
		t.Error("agentic results must not carry an extraction")
	}
}

func TestAgenticFallsBackWithoutBackend(t *testing.T) {
	standard := &stubLLM{name: "standard", content: "plain"}
	d := New(standard, nil)

	d.Generate(context.Background(), Request{Agentic: true})
	if standard.calls != 1 {
		t.Error("agentic request should fall back to the standard backend")
	}
}

func TestFailureBecomesContent(t *testing.T) {
	d := New(&stubLLM{name: "stub", err: errors.New("rate limited")}, nil)

	var streamed strings.Builder
	res := d.Generate(context.Background(), Request{OnStream: func(chunk string) {
		streamed.WriteString(chunk)
	}})

	if !res.Failed {
		t.Fatal("expected a failed result")
	}
	if !strings.Contains(res.Content, "rate limited") {
		t.Errorf("error text missing from content: %q", res.Content)
	}
	if streamed.String() != res.Content {
		t.Error("failure text should also reach the stream")
	}
	if res.Extraction != nil {
		t.Error("failed turns must not produce an extraction")
	}
}
