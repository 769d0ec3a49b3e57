package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/api"
	"github.com/katakuxiko/kbagent/internal/chunker"
	"github.com/katakuxiko/kbagent/internal/config"
	"github.com/katakuxiko/kbagent/internal/embedding"
	"github.com/katakuxiko/kbagent/internal/extract"
	"github.com/katakuxiko/kbagent/internal/logger"
	"github.com/katakuxiko/kbagent/internal/service"
	"github.com/katakuxiko/kbagent/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog := logger.New(cfg.LogFilePath, cfg.IsProduction())
	defer zlog.Sync()

	if cfg.LLM.APIKey == "" {
		zlog.Warn("PERPLEXITY_API_KEY is not set; questions will fail with AuthError")
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		zlog.Fatal("embedder", zap.Error(err))
	}
	generator, err := service.NewGenerator(cfg.LLM)
	if err != nil {
		zlog.Fatal("generator", zap.Error(err))
	}
	ch, err := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		zlog.Fatal("chunker", zap.Error(err))
	}

	newIndex, closeIndex, err := store.NewFactory(cfg.Index, embedder.Dimension())
	if err != nil {
		zlog.Fatal("index backend", zap.String("backend", cfg.Index.Backend), zap.Error(err))
	}
	defer closeIndex()

	pipeline := &service.Pipeline{
		Embedder:  embedder,
		Chunker:   ch,
		Fetcher:   extract.NewFetcher(cfg.FetchTimeout),
		Generator: generator,
		TopK:      cfg.Retrieval.TopK,
		Log:       zlog,
	}
	sessions := service.NewSessions(pipeline, newIndex, cfg.SessionTTL)

	app := api.NewApp(api.NewHandler(generator, zlog), sessions, cfg.MaxUploadBytes, zlog)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		zlog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("shutdown", zap.Error(err))
		}
	}()

	zlog.Info("server started",
		zap.String("addr", cfg.ServerAddr),
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
		zap.String("embedder", embedder.ModelInfo()),
		zap.String("index", cfg.Index.Backend),
		zap.Int("chunk_size", ch.Size()),
		zap.Int("chunk_overlap", ch.Overlap()),
	)
	if err := app.Listen(cfg.ServerAddr); err != nil {
		zlog.Fatal("listen", zap.Error(err))
	}
}
