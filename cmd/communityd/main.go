// ====================================
// File: cmd/communityd/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/app"
	"github.com/givecurve/givecurve/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	logFile := flag.String("log-file", "", "optional JSON log file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.InitLogger(cfg.DebugLogging, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Starting donation platform")

	platform, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize platform", zap.Error(err))
	}
	defer platform.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := platform.Run(ctx); err != nil {
		logger.Fatal("Platform execution error", zap.Error(err))
	}
}
