package embedder

import (
	"context"
	"errors"
)

// Status tracks the readiness of the embedding model.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "uninitialized"
	}
}

// ErrNotReady is returned by Embed whenever the provider is not ready.
// Callers are expected to fall back to a non-vector code path (keyword-only
// matching, full-corpus listing) rather than propagating this to the user.
var ErrNotReady = errors.New("embedding model not ready")

// Engine is a backend that turns text into a vector.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}
