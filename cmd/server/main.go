package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides USERSCRIPTS_DB)")
	scriptsDir := flag.String("scripts", "", "Directory of .user.js files to install at startup")
	dev := flag.Bool("dev", false, "Development mode (debug logs, console encoding)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}
	if *scriptsDir != "" {
		cfg.Storage.ScriptsDir = *scriptsDir
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	report, err := srv.Seed(ctx)
	if err != nil {
		logger.Warn("Failed to seed scripts", zap.Error(err))
	} else {
		logger.Info("Seeded scripts",
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("failed", report.Failed),
		)
	}

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	} else {
		logger.Info("Shutting down gracefully")
	}
	if err := srv.Close(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
