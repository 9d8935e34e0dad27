// Package main runs the document QA server: REST API plus an MCP
// endpoint on the same listener.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/docuchat/docuchat/internal/app"
	"github.com/docuchat/docuchat/internal/config"
	mcpserver "github.com/docuchat/docuchat/internal/mcp"
	"github.com/docuchat/docuchat/internal/server"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load .env if present (local development), ignore if missing.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.LogLevel)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("assemble engine: %v", err)
	}
	defer application.Close()

	api := server.New(application.Engine,
		server.WithMaxUpload(cfg.MaxUploadBytes()),
		server.WithTopK(cfg.RetrievalTopK),
		server.WithLogger(logger),
	)

	tools := mcpserver.NewServer(application.Engine, cfg.RetrievalTopK)

	root := chi.NewRouter()
	root.Handle("/mcp", tools.HTTPHandler(false))
	api.Mount(root)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.Addr, "index", cfg.IndexBackend,
		"embedding", cfg.EmbeddingProvider, "generation", cfg.GenerationProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
