package llm

import (
	"errors"
	"testing"
)

func TestExtractJSONPlain(t *testing.T) {
	payload, err := ExtractJSON(`{"a":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"a":1}` {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	text := "Here is the analysis you asked for:\n```json\n{\"thoughts\":\"ok\",\"proposals\":[]}\n```\nLet me know if you need more."
	payload, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"thoughts":"ok","proposals":[]}` {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	text := `Sure! [{"id":"x"},{"id":"y"}] hope that helps`
	payload, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `[{"id":"x"},{"id":"y"}]` {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestExtractJSONNone(t *testing.T) {
	payload, err := ExtractJSON("I could not produce any proposals this time.")
	if err != nil {
		t.Fatalf("prose without JSON should not error: %v", err)
	}
	if payload != nil {
		t.Errorf("expected nil payload, got %s", payload)
	}
}

func TestExtractJSONMalformed(t *testing.T) {
	_, err := ExtractJSON(`{"broken": `)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Errorf("expected ErrMalformedJSON, got %v", err)
	}

	_, err = ExtractJSON(`{"a": nope}`)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Errorf("expected ErrMalformedJSON for invalid body, got %v", err)
	}
}
