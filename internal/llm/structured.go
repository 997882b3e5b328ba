package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedJSON marks the unrecoverable case: a JSON-looking payload was
// located but would not parse even after repair. Callers surface this as a
// failed generation attempt, with no silent fallback.
var ErrMalformedJSON = errors.New("structured output contains malformed JSON")

// Structured wraps a backend for structured-output calls (reflection,
// proposal generation). The model is asked for raw JSON matching a schema;
// the reply is tolerantly stripped of code fences and surrounding prose
// before parsing.
type Structured struct {
	backend LLM
}

func NewStructured(backend LLM) *Structured {
	return &Structured{backend: backend}
}

const structuredSystem = "You respond with a single JSON value matching the requested schema. No markdown, no commentary."

// Generate asks for JSON matching jsonSchema and unmarshals the extracted
// payload into out. A reply with no JSON payload at all returns (false, nil)
// so callers can treat it as "nothing proposed"; a located-but-unparseable
// payload returns ErrMalformedJSON.
func (s *Structured) Generate(ctx context.Context, prompt, jsonSchema string, temperature float64, out any) (bool, error) {
	full := prompt
	if jsonSchema != "" {
		full = fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s", prompt, jsonSchema)
	}

	resp, err := s.backend.Generate(ctx, structuredSystem, []Message{{Role: "user", Content: full}}, temperature, 8192, nil)
	if err != nil {
		return false, err
	}

	payload, err := ExtractJSON(resp.Content)
	if err != nil {
		return false, err
	}
	if payload == nil {
		return false, nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return true, nil
}

// ExtractJSON locates a JSON value inside free text. It strips markdown
// fences, then takes the slice from the first opening bracket to the last
// matching closing bracket. Returns nil (no error) when the text contains no
// bracket pair, and ErrMalformedJSON when a candidate exists but does not
// parse.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = stripFences(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, nil
	}

	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	end := strings.LastIndexByte(text, close)
	if end <= start {
		return nil, fmt.Errorf("%w: unterminated %c", ErrMalformedJSON, open)
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("%w: invalid payload", ErrMalformedJSON)
	}

	return json.RawMessage(candidate), nil
}

func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}

	// keep whatever sits between the first fence pair; tolerate a language
	// tag on the opening fence
	first := strings.Index(text, "```")
	rest := text[first+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || tag == "json" || tag == "JSON" {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
