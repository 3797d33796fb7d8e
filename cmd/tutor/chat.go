package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"tutor/internal/config"
	"tutor/internal/ingest"
	"tutor/internal/observability"
	"tutor/internal/service"
	"tutor/internal/session"
	"tutor/internal/tui"
)

func runChat(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer initLogging(cfg).Close()
	log := observability.Logger()

	b := openBackends(ctx, cfg)
	if err := b.errs[backendCompletion]; err != nil {
		return fmt.Errorf("completion backend: %w", err)
	}
	for _, name := range []string{backendEmbedder, backendVectorIndex, backendObjectStore} {
		if err := b.errs[name]; err != nil {
			log.Warn("backend unavailable", "backend", name, "error", err)
			fmt.Fprintf(os.Stderr, "warning: %s unavailable: %v\n", name, err)
		}
	}

	if cfg.VectorIndex.Type == "memory" && b.embedder != nil && b.index != nil {
		if err := loadOfflineCorpus(ctx, cfg, b); err != nil {
			log.Warn("offline corpus not loaded", "error", err)
			fmt.Fprintf(os.Stderr, "warning: offline corpus not loaded: %v\n", err)
		}
	}

	deps := service.Deps{
		Completer:   b.completer,
		Embedder:    b.embedder,
		Retriever:   b.index,
		ObjectStore: b.store,
		Course:      cfg.CourseDefinition(),
	}
	orch := service.NewOrchestrator(deps, settingsFrom(cfg))
	sess := session.New(orch.Course())
	log.Info("session started", "session_id", sess.ID(), "objectives", orch.Course().Len())

	_, err = tea.NewProgram(tui.New(ctx, orch, sess), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func settingsFrom(cfg *config.AppConfig) service.Settings {
	return service.Settings{
		Model:              cfg.Completion.Model,
		RewriteModel:       cfg.Completion.RewriteModel,
		Temperature:        derefOr(cfg.Completion.Temperature, 0.7),
		RewriteTemperature: derefOr(cfg.Completion.RewriteTemperature, 0.7),
		MaxTokens:          cfg.Completion.MaxTokens,
		RewriteMaxTokens:   cfg.Completion.RewriteMaxTokens,
		HistoryWindow:      cfg.Course.HistoryWindow,
		TopK:               cfg.VectorIndex.TopK,
		Namespace:          cfg.VectorIndex.Namespace,
		KeyPrefix:          cfg.ObjectStore.Prefix,
		CallTimeout:        cfg.CallTimeout(),
		StreamTimeout:      cfg.StreamTimeout(),
	}
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// loadOfflineCorpus fills the in-memory index from vector_index.memory.corpus.
func loadOfflineCorpus(ctx context.Context, cfg *config.AppConfig, b *backends) error {
	if cfg.VectorIndex.Memory == nil || len(cfg.VectorIndex.Memory.Corpus) == 0 {
		return nil
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return err
	}
	in := ingest.New(ch, b.embedder, b.index, nil)
	report, err := in.Run(ctx, cfg.VectorIndex.Memory.Corpus, ingest.Options{Namespace: cfg.VectorIndex.Namespace})
	if err != nil {
		return err
	}
	observability.Logger().Info("offline corpus loaded", "documents", report.Documents, "chunks", report.Chunks)
	return nil
}
