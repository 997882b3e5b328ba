// Package maintenance runs the background embedding backfill. Embeddings
// are cleared whenever a record's text changes and computed lazily here, so
// interactive writes never wait on the embedding backend.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/reverie/internal/alerts"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/store"
)

// DefaultBatch caps embed calls per pass so one pass never monopolizes the
// backend; whatever is left waits for the next tick.
const DefaultBatch = 20

type Reindexer struct {
	kb      *store.Store
	emb     *embedder.Provider
	alerter *alerts.Alerter
	batch   int
	sched   *cron.Cron
}

func NewReindexer(kb *store.Store, emb *embedder.Provider, alerter *alerts.Alerter, batch int) *Reindexer {
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &Reindexer{kb: kb, emb: emb, alerter: alerter, batch: batch}
}

// Start schedules periodic passes. Schedules use cron syntax, including
// descriptors like "@every 5m".
func (r *Reindexer) Start(spec string) error {
	r.sched = cron.New()
	_, err := r.sched.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		n, err := r.RunOnce(ctx)
		if err != nil {
			logger.Warn("reindex pass failed", "error", err)
			if r.alerter != nil {
				r.alerter.Warn("maintenance", "embedding backfill failed", err)
			}
			return
		}
		if n > 0 {
			logger.Info("reindex pass complete", "embedded", n)
		}
	})
	if err != nil {
		return err
	}
	r.sched.Start()
	return nil
}

func (r *Reindexer) Stop() {
	if r.sched != nil {
		r.sched.Stop()
	}
}

// RunOnce embeds up to the batch limit of records that are missing an
// embedding and reports how many it filled. A not-ready embedder is a
// silent no-op; the next pass will catch up.
func (r *Reindexer) RunOnce(ctx context.Context) (int, error) {
	if !r.emb.Ready() {
		return 0, nil
	}

	done := 0
	embed := func(text string, save func([]float32) error) error {
		if done >= r.batch {
			return nil
		}
		vec, err := r.emb.Embed(ctx, text)
		if err != nil {
			return err
		}
		if err := save(vec); err != nil {
			return err
		}
		done++
		return nil
	}

	memories, err := r.kb.AllMemories()
	if err != nil {
		return done, err
	}
	for _, m := range memories {
		if len(m.Embedding) > 0 {
			continue
		}
		if err := embed(m.Content, func(v []float32) error {
			return r.kb.SetMemoryEmbedding(m.ID, v)
		}); err != nil {
			return done, err
		}
	}

	entries, err := r.kb.ActiveEntries(nil)
	if err != nil {
		return done, err
	}
	for _, e := range entries {
		if len(e.Embedding) > 0 {
			continue
		}
		id := e.ID
		if err := embed(e.Content, func(v []float32) error {
			return r.kb.SetLorebookEntryEmbedding(id, v)
		}); err != nil {
			return done, err
		}
	}

	characters, err := r.kb.Characters()
	if err != nil {
		return done, err
	}
	for _, c := range characters {
		if len(c.Embedding) > 0 {
			continue
		}
		id := c.ID
		if err := embed(c.DescriptiveText(), func(v []float32) error {
			return r.kb.SetCharacterEmbedding(id, v)
		}); err != nil {
			return done, err
		}
	}

	personas, err := r.kb.Personas()
	if err != nil {
		return done, err
	}
	for _, p := range personas {
		if len(p.Embedding) > 0 {
			continue
		}
		id := p.ID
		if err := embed(p.Name+"\n"+p.Description, func(v []float32) error {
			return r.kb.SetPersonaEmbedding(id, v)
		}); err != nil {
			return done, err
		}
	}

	prompts, err := r.kb.PromptTemplates()
	if err != nil {
		return done, err
	}
	for _, p := range prompts {
		if len(p.Embedding) > 0 {
			continue
		}
		id := p.ID
		if err := embed(p.Name+"\n"+p.Content, func(v []float32) error {
			return r.kb.SetPromptEmbedding(id, v)
		}); err != nil {
			return done, err
		}
	}

	return done, nil
}
