package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinescope/internal/api"
	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/llm"
	"cinescope/internal/services"
	"cinescope/internal/tools"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting cinescope server",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_path", cfg.Database.Path))

	if err := database.Initialize(cfg, logger); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	db := database.DB
	llmClient := llm.NewClient(cfg, logger)
	if !llmClient.Enabled() {
		logger.Warn("No LLM API key configured; chat and elaborations are disabled")
	}

	jobs := services.NewJobManager(db, logger)
	registry := tools.NewRegistry(db, logger)
	importer := services.NewImportService(db, cfg, logger, jobs)
	posters := services.NewPosterService(db, cfg, logger)
	enrichment := services.NewEnrichmentService(db, cfg, logger, jobs, posters)
	preferences := services.NewPreferenceService(db, cfg, logger)
	insights := services.NewInsightService(db, cfg, logger, preferences, llmClient)
	chat := services.NewChatService(db, cfg, logger, llmClient, registry)

	handlers := api.NewHandlers(db, logger, importer, enrichment, preferences, posters, insights, chat, jobs)
	router := api.SetupRouter(cfg, logger, handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Logging.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
