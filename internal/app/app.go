// Package app assembles the engine from configuration. Both the HTTP
// server and the CLI wire themselves through it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/docuchat/docuchat/internal/answer"
	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/engine"
	"github.com/docuchat/docuchat/internal/extractor"
	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/knowledge"
	"github.com/docuchat/docuchat/internal/retriever"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorindex"
	qdrantindex "github.com/docuchat/docuchat/internal/vectorindex/qdrant"
)

// App is the assembled engine plus the resources it owns.
type App struct {
	Engine *engine.Engine
	Config *config.Config
	Logger *slog.Logger

	closers []io.Closer
}

// New builds the full pipeline from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	index, err := a.newIndex(ctx, cfg, embedder.Dimensions())
	if err != nil {
		a.Close()
		return nil, err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, st)

	kb := knowledge.NewManager(knowledge.Config{
		Extractor:        extractor.New(),
		Chunker:          chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder:         embedder,
		Index:            index,
		Store:            st,
		MaxDocumentBytes: cfg.MaxUploadBytes(),
		Logger:           logger,
	})

	// A memory index starts empty after every restart; rebuild it from
	// the persisted chunk rows so documents stay answerable.
	if cfg.IndexBackend == config.IndexMemory {
		if err := kb.Rehydrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("rebuild vector index: %w", err)
		}
	}

	ret := retriever.New(embedder, index, kb, cfg.RetrievalTopK)
	synth := answer.New(generator)
	a.Engine = engine.New(ret, synth, kb, st, logger)
	return a, nil
}

// Close releases the store and index connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}

func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(cfg.EmbeddingModel, secs(cfg.OpenAITimeoutSec))
	case config.ProviderOllama:
		return embedding.NewOllama(embedding.OllamaConfig{
			BaseURL:    cfg.OllamaHost,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.VectorDim,
			Timeout:    secs(cfg.OllamaTimeoutSec),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newGenerator(cfg *config.Config) (generation.Generator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderOpenAI:
		return generation.NewOpenAI(cfg.GenerationModel, secs(cfg.OpenAITimeoutSec))
	case config.ProviderOllama:
		return generation.NewOllama(generation.OllamaConfig{
			BaseURL: cfg.OllamaHost,
			Model:   cfg.GenerationModel,
			Timeout: secs(cfg.OllamaTimeoutSec),
		}), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

func (a *App) newIndex(ctx context.Context, cfg *config.Config, dimensions int) (vectorindex.Index, error) {
	switch cfg.IndexBackend {
	case config.IndexMemory:
		return vectorindex.NewMemory(), nil
	case config.IndexQdrant:
		idx, err := qdrantindex.New(cfg.QdrantHost, cfg.QdrantPort, dimensions)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		a.closers = append(a.closers, idx)
		if err := idx.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// NewLogger builds the process logger from the configured level.
func NewLogger(level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
