package maintenance

import (
	"context"
	"testing"

	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/store"
)

type countingEngine struct {
	calls int
}

func (c *countingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{1, 0}, nil
}

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunOnceFillsMissingEmbeddings(t *testing.T) {
	kb := openTest(t)

	indexed := &store.Memory{Content: "already indexed", Embedding: []float32{0, 1}}
	missing := &store.Memory{Content: "needs indexing"}
	for _, m := range []*store.Memory{indexed, missing} {
		if err := kb.CreateMemory(m); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}

	engine := &countingEngine{}
	r := NewReindexer(kb, embedder.NewProviderWithEngine(engine), nil, 0)

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 || engine.calls != 1 {
		t.Fatalf("expected exactly the missing memory to be embedded, got n=%d calls=%d", n, engine.calls)
	}

	got, err := kb.GetMemory(missing.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if len(got.Embedding) == 0 {
		t.Error("embedding was not persisted")
	}
}

func TestRunOnceRespectsBatchLimit(t *testing.T) {
	kb := openTest(t)
	for i := 0; i < 5; i++ {
		if err := kb.CreateMemory(&store.Memory{Content: "fact"}); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}

	engine := &countingEngine{}
	r := NewReindexer(kb, embedder.NewProviderWithEngine(engine), nil, 2)

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 2 || engine.calls != 2 {
		t.Errorf("batch limit ignored: n=%d calls=%d", n, engine.calls)
	}
}

func TestRunOnceSkipsWhenNotReady(t *testing.T) {
	kb := openTest(t)
	if err := kb.CreateMemory(&store.Memory{Content: "fact"}); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	r := NewReindexer(kb, embedder.NewProvider(embedder.Config{}), nil, 0)
	n, err := r.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Errorf("not-ready embedder should be a no-op, got n=%d err=%v", n, err)
	}
}
