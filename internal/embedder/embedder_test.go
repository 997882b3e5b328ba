package embedder

import (
	"context"
	"errors"
	"testing"
)

type fakeEngine struct {
	vec  []float32
	err  error
	call int
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	f.call++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestEmbedNotReady(t *testing.T) {
	p := NewProvider(Config{Provider: "ollama"})

	if _, err := p.Embed(context.Background(), "hello"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if p.Status() != StatusUninitialized {
		t.Errorf("expected uninitialized, got %s", p.Status())
	}
}

func TestInitProbeFailure(t *testing.T) {
	engine := &fakeEngine{err: errors.New("model missing")}
	p := &Provider{engine: engine}

	if err := p.Init(context.Background()); err == nil {
		t.Fatal("expected probe failure")
	}
	if p.Status() != StatusError {
		t.Errorf("expected error status, got %s", p.Status())
	}

	// callers still see ErrNotReady, not the probe error
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after failed init, got %v", err)
	}
}

func TestInitIdempotent(t *testing.T) {
	engine := &fakeEngine{vec: []float32{1, 0}}
	p := &Provider{engine: engine}

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	probes := engine.call

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if engine.call != probes {
		t.Error("second init re-probed a ready engine")
	}

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}
