package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/toolserver"
	"cinescope/internal/tools"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so all logging goes to stderr
	logger, err := stderrLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := database.Initialize(cfg, logger); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	registry := tools.NewRegistry(database.DB, logger)
	server := toolserver.NewServer(database.DB, registry, logger, os.Stdin, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Tool server listening on stdio")
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Tool server failed", zap.Error(err))
	}
}

func stderrLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	return zapCfg.Build()
}
