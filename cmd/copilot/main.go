package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/finsight/copilot"
	"github.com/finsight/copilot/ingest"
	"github.com/finsight/copilot/internal/config"
	"github.com/finsight/copilot/internal/httpapi"
	"github.com/finsight/copilot/observer"
	"github.com/finsight/copilot/provider/groq"
	"github.com/finsight/copilot/provider/hf"
	"github.com/finsight/copilot/store/memory"
	"github.com/finsight/copilot/store/postgres"
	"github.com/finsight/copilot/store/sqlite"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg := config.Load(os.Getenv("COPILOT_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("observer shutdown failed", "error", err)
			}
		}()
	}

	// Embedding provider
	var embOpts []hf.EmbeddingOption
	if cfg.Embedding.BaseURL != "" {
		embOpts = append(embOpts, hf.WithEmbeddingBaseURL(cfg.Embedding.BaseURL))
	}
	var embedding copilot.EmbeddingProvider = hf.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, embOpts...)
	retryDelay := time.Duration(cfg.Generation.RetryBaseDelayMS) * time.Millisecond
	embedding = copilot.WithEmbeddingRetry(embedding,
		copilot.RetryMaxAttempts(cfg.Generation.RetryAttempts),
		copilot.RetryBaseDelay(retryDelay),
		copilot.RetryAttemptTimeout(time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second),
		copilot.RetryLogger(logger))
	if inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
	}

	// Vector store
	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Generation candidates, tried in order
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	candidates := make([]copilot.Candidate, 0, len(cfg.Generation.Models))
	for _, model := range cfg.Generation.Models {
		var genOpts []groq.Option
		if cfg.Generation.BaseURL != "" {
			genOpts = append(genOpts, groq.WithBaseURL(cfg.Generation.BaseURL))
		}
		var p copilot.GenerationProvider = groq.New(cfg.Generation.APIKey, model, genOpts...)
		if inst != nil {
			p = observer.WrapGeneration(p, inst)
		}
		candidates = append(candidates, copilot.Candidate{Provider: p, Timeout: timeout})
	}
	gen := copilot.NewFallbackGenerator(candidates,
		copilot.WithFallbackLogger(logger),
		copilot.WithFallbackRetry(
			copilot.RetryMaxAttempts(cfg.Generation.RetryAttempts),
			copilot.RetryBaseDelay(retryDelay),
			copilot.RetryLogger(logger)))

	// Pipeline
	pipeline := copilot.NewPipeline(store, embedding, gen,
		copilot.WithChunker(ingest.NewRecursiveChunker(
			ingest.WithChunkSize(cfg.Ingest.ChunkSize),
			ingest.WithOverlap(cfg.Ingest.Overlap))),
		copilot.WithTopK(cfg.Retrieval.TopK),
		copilot.WithPipelineLogger(logger))

	// HTTP server
	srvOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB) << 20),
	}
	if inst != nil {
		srvOpts = append(srvOpts, httpapi.WithFallbackHook(inst.RecordFallback))
	}
	srv := httpapi.NewServer(pipeline, srvOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Stop(sctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if err := store.Save(sctx); err != nil {
		logger.Error("store save failed", "error", err)
	}
}

// buildStore selects and initializes the configured vector store backend.
// The returned cleanup closes whatever the backend opened.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (copilot.VectorStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.New(pool, cfg.Embedding.Dimensions)
		if err := st.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	case "sqlite":
		st := sqlite.New(cfg.Store.Path, cfg.Embedding.Dimensions, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		st := memory.New(cfg.Embedding.Dimensions,
			memory.WithMaxEntries(cfg.Store.MaxEntries),
			memory.WithPath(cfg.Store.Path+".json"),
			memory.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
