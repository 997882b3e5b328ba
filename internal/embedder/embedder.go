// Package embedder wraps a text-embedding backend behind an explicit
// readiness gate. The provider is constructed and injected rather than held
// in module-level state so tests can run isolated instances.
package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/bowerhall/reverie/internal/logger"
)

// Provider is the embedding service consumed by retrieval callers. Embed
// fails with ErrNotReady until Init has completed; Init is idempotent and
// may be fired speculatively at startup without blocking interactive use.
type Provider struct {
	mu     sync.Mutex
	status Status
	engine Engine
	cfg    Config
}

func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// NewProviderWithEngine bypasses the factory, for tests and embedded hosts
// that construct their own engine.
func NewProviderWithEngine(engine Engine) *Provider {
	return &Provider{engine: engine, status: StatusReady}
}

func newEngine(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllama(baseURL, model), nil
	case "genai":
		return newGenAI(cfg.APIKey, cfg.Model)
	case "":
		return nil, fmt.Errorf("no embedder provider configured")
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
}

// Init constructs the backend engine and verifies it with a probe embed.
// Safe to call repeatedly: once ready it returns immediately, and a failed
// attempt can be retried.
func (p *Provider) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.status == StatusReady {
		p.mu.Unlock()
		return nil
	}
	if p.status == StatusLoading {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusLoading
	engine := p.engine
	cfg := p.cfg
	p.mu.Unlock()

	var err error
	if engine == nil {
		engine, err = newEngine(cfg)
		if err != nil {
			p.setStatus(StatusError)
			return err
		}
	}

	// probe so a misconfigured backend fails here, not mid-turn
	if _, err := engine.Embed(ctx, "ready"); err != nil {
		p.setStatus(StatusError)
		return fmt.Errorf("embedder probe failed: %w", err)
	}

	p.mu.Lock()
	p.engine = engine
	p.status = StatusReady
	p.mu.Unlock()

	logger.Info("embedder ready", "provider", cfg.Provider, "model", cfg.Model)
	return nil
}

func (p *Provider) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Provider) Ready() bool {
	return p.Status() == StatusReady
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	status := p.status
	engine := p.engine
	p.mu.Unlock()

	if status != StatusReady || engine == nil {
		return nil, ErrNotReady
	}

	return engine.Embed(ctx, text)
}
