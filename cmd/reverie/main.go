// Command reverie runs the roleplay engine with a terminal REPL frontend.
// The same wiring serves embedded frontends; the REPL exists for local use
// and for exercising the whole stack without a UI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bowerhall/reverie/internal/agent"
	"github.com/bowerhall/reverie/internal/alerts"
	"github.com/bowerhall/reverie/internal/config"
	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/dispatch"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/llm"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/maintenance"
	"github.com/bowerhall/reverie/internal/prompt"
	"github.com/bowerhall/reverie/internal/reflection"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	kb, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open knowledge store", "error", err)
	}
	defer kb.Close()

	convo, err := conversation.NewStore(kb.DB())
	if err != nil {
		logger.Fatal("failed to open transcript store", "error", err)
	}

	if cfg.Prompt.TemplatePack != "" {
		pack, err := prompt.LoadPack(cfg.Prompt.TemplatePack)
		if err != nil {
			logger.Fatal("failed to load template pack", "path", cfg.Prompt.TemplatePack, "error", err)
		}
		if err := pack.Apply(kb); err != nil {
			logger.Fatal("failed to apply template pack", "error", err)
		}
		logger.Info("template pack applied", "path", cfg.Prompt.TemplatePack)
	}

	model, err := llm.New(llmConfig(cfg.LLM))
	if err != nil {
		logger.Fatal("failed to create llm", "error", err)
	}

	var agentic llm.LLM
	if cfg.Agentic.Provider != "" {
		agentic, err = llm.New(llmConfig(cfg.Agentic))
		if err != nil {
			logger.Fatal("failed to create agentic backend", "error", err)
		}
	}

	reflectorBackend, err := llm.New(llmConfig(cfg.Reflector))
	if err != nil {
		logger.Fatal("failed to create reflector backend", "error", err)
	}

	alerter := alerts.New(func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	}, 10*time.Minute)

	emb := embedder.NewProvider(embedder.Config{
		Provider: cfg.Embedder.Provider,
		BaseURL:  cfg.Embedder.BaseURL,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.Embedder.APIKey,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := emb.Init(ctx); err != nil {
			logger.Warn("embedder init failed, retrieval disabled", "error", err)
			alerter.Warn("embedder", "initialization failed", err)
		}
	}()

	sessions := scene.NewSessions()
	builder := prompt.NewBuilder(kb, emb, prompt.Options{
		VectorTopK:       cfg.Prompt.VectorTopK,
		TokenBudget:      cfg.Prompt.TokenBudget,
		StylePreferences: cfg.Prompt.StylePreferences,
	})

	reflector := reflection.NewEngine(kb, convo, llm.NewStructured(reflectorBackend), emb, sessions, reflection.Options{
		Temperature:              cfg.Reflection.Temperature,
		DisableRationaleRecovery: cfg.Reflection.DisableRecovery,
	})

	a := agent.New(kb, convo, sessions, builder, dispatch.New(model, agentic), reflector, alerter, agent.Config{
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Reflection:  cfg.Reflection.Enabled,
	})

	reindexer := maintenance.NewReindexer(kb, emb, alerter, cfg.Maintenance.ReindexBatch)
	if err := reindexer.Start(cfg.Maintenance.ReindexSchedule); err != nil {
		logger.Fatal("failed to start reindexer", "error", err)
	}
	defer reindexer.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("reverie ready", "provider", cfg.LLM.Provider, "db", cfg.DBPath)
	repl(ctx, a, kb, reflector)
}

// repl is a minimal line-oriented frontend. Slash commands cover the review
// and lore flows; everything else is a roleplay turn.
func repl(ctx context.Context, a *agent.Agent, kb *store.Store, reflector *reflection.Engine) {
	conversationID := "repl"
	var character *store.Character
	agentic := false

	characters, err := kb.Characters()
	if err == nil && len(characters) > 0 {
		character = characters[0]
		fmt.Printf("Playing %s. /help for commands.\n", character.Name)
	} else {
		fmt.Println("No characters yet, running in assistant mode. /help for commands.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := command(ctx, line, a, kb, reflector, conversationID, &character, &agentic); done {
				return
			}
			continue
		}

		lorebookIDs := activeLorebookIDs(kb)
		_, err := a.Process(ctx, conversationID, line, agent.TurnOptions{
			Character:         character,
			ActiveLorebookIDs: lorebookIDs,
			Agentic:           agentic,
		}, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err == agent.ErrBusy {
			fmt.Println("(still generating the previous reply)")
		} else if err != nil {
			logger.Error("turn failed", "error", err)
		}
	}
}

func command(ctx context.Context, line string, a *agent.Agent, kb *store.Store, reflector *reflection.Engine, conversationID string, character **store.Character, agentic *bool) bool {
	fields := strings.Fields(line)
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`/character [name]  list characters or switch to one
/reroll            regenerate the last reply
/next <text>       one-time instruction for the next reply
/search            toggle web-grounded replies
/correct <text>    correct recorded lore
/extract           mine this conversation for new lore
/reflections       list recent self-critiques
/approve <ref> <proposal>
/reject <ref> <proposal> [reason]
/quit`)

	case "/character":
		characters, err := kb.Characters()
		if err != nil {
			fmt.Println("failed:", err)
			break
		}
		if rest == "" {
			for _, c := range characters {
				fmt.Println("-", c.Name)
			}
			break
		}
		found := false
		for _, c := range characters {
			if strings.EqualFold(c.Name, rest) {
				*character = c
				found = true
				fmt.Printf("Now playing %s.\n", c.Name)
				break
			}
		}
		if !found {
			fmt.Println("no character named", rest)
		}

	case "/reroll":
		_, err := a.Reroll(ctx, conversationID, agent.TurnOptions{Character: *character, ActiveLorebookIDs: activeLorebookIDs(kb)}, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err != nil {
			fmt.Println("reroll failed:", err)
		}

	case "/next":
		if err := a.SetEphemeralInstruction(conversationID, rest); err != nil {
			fmt.Println("failed:", err)
		} else {
			fmt.Println("(noted for the next reply)")
		}

	case "/search":
		*agentic = !*agentic
		fmt.Println("web-grounded replies:", *agentic)

	case "/correct":
		res, err := reflector.CorrectLore(ctx, conversationID, activeLorebookIDs(kb), rest)
		if err != nil {
			fmt.Println("failed:", err)
		} else {
			fmt.Println(res.Message)
		}

	case "/extract":
		res, err := reflector.ExtractLore(ctx, conversationID, "")
		if err != nil {
			fmt.Println("failed:", err)
		} else {
			fmt.Println(res.Message)
		}

	case "/reflections":
		refs, err := kb.RecentReflections(5)
		if err != nil {
			fmt.Println("failed:", err)
			break
		}
		for _, r := range refs {
			fmt.Printf("[%s] %s\n", r.ID, r.Thoughts)
			for _, p := range r.Proposals {
				fmt.Printf("  [%s] (%s) %s %s: %s\n", p.ID, p.Status, p.Action, p.Type, p.Rationale)
			}
		}

	case "/approve":
		if len(fields) < 3 {
			fmt.Println("usage: /approve <reflection> <proposal>")
			break
		}
		if err := reflector.Approve(ctx, fields[1], fields[2]); err != nil {
			fmt.Println("failed:", err)
		} else {
			fmt.Println("applied")
		}

	case "/reject":
		if len(fields) < 3 {
			fmt.Println("usage: /reject <reflection> <proposal> [reason]")
			break
		}
		reason := strings.Join(fields[3:], " ")
		if err := reflector.Reject(fields[1], fields[2], reason); err != nil {
			fmt.Println("failed:", err)
		} else {
			fmt.Println("rejected")
		}

	default:
		fmt.Println("unknown command, /help for the list")
	}
	return false
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
	}
}

func activeLorebookIDs(kb *store.Store) []string {
	books, err := kb.Lorebooks()
	if err != nil {
		return nil
	}
	var ids []string
	for _, b := range books {
		if b.Enabled {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
