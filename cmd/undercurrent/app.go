package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/andrewdmason/undercurrent-sub000/internal/client/api"
	"github.com/andrewdmason/undercurrent-sub000/internal/config"
)

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *api.Client
	logFile *os.File
}

// newApp loads configuration, applies flag overrides and opens the log file.
// The terminal is the UI, so logs go to LOG_DIR instead of stderr.
func newApp() (*app, error) {
	cfg := config.Load()
	if serverURL != "" {
		cfg.APIBaseURL = serverURL
	}
	if ownerID != "" {
		cfg.OwnerID = ownerID
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logFile, err := config.SetupLogFile(cfg.LogDir, "cli", cfg.LogMaxFiles)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg, logFile)
	logger.Info("cli started", "server", cfg.APIBaseURL, "owner_id", cfg.OwnerID)

	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  api.NewClient(cfg.APIBaseURL, cfg.OwnerID, nil, logger),
		logFile: logFile,
	}, nil
}

// streamClient has no timeout, which would cut long streams.
func (a *app) streamClient() *http.Client {
	return &http.Client{}
}

func (a *app) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}
