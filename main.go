package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"pdf-chat-backend/config"
	"pdf-chat-backend/controller"
	"pdf-chat-backend/router"
	"pdf-chat-backend/service/chat"
	"pdf-chat-backend/service/document"
	"pdf-chat-backend/service/retrieval"
	"pdf-chat-backend/service/session"
	"pdf-chat-backend/utils"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := config.Cfg

	slog.SetDefault(utils.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format))
	if utils.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	handler, err := buildHandler(cfg)
	if err != nil {
		slog.Error("failed to initialize services", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.Register(handler, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("server started", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped unexpectedly", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "err", err)
		return
	}
	slog.Info("server exited")
}

func buildHandler(cfg *config.Config) (*controller.Handler, error) {
	registry := session.NewRegistry(cfg.Session.TTL)
	store := session.NewStore()
	registry.OnEvicted(store.Delete)

	embedder, err := document.NewEmbedder(cfg.Model, cfg.Document.EmbeddingBatchSize)
	if err != nil {
		return nil, err
	}
	documents := document.NewService(embedder, registry,
		document.WithProcessors(document.DefaultProcessors(cfg.Document.ChunkSize, cfg.Document.ChunkOverlap)...),
		document.WithEmbedAttempts(cfg.Document.EmbedAttempts),
		document.WithMaxBytes(cfg.Server.MaxUploadBytes),
	)

	llm, err := chat.NewLLM(cfg.Model)
	if err != nil {
		return nil, err
	}

	retriever := retrieval.NewTool(registry, cfg.Retrieval.TopK)
	tools := chat.NewToolSet()
	if err := tools.Register(retriever.Definition(), retriever.Call); err != nil {
		return nil, err
	}

	agent := chat.NewAgent(llm, registry, store, tools)

	return controller.NewHandler(documents, agent, registry, store, cfg.Server.MaxUploadBytes), nil
}
