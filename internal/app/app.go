package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	inR    io.Reader
	outW   io.Writer
	logger *slog.Logger
	config *Config
	flow   *config.Flow
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and a loaded,
// validated flow. A failure to load the flow is a fatal startup error.
func NewApp(inR io.Reader, outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	flow, err := loader.Load(ctx, appConfig.FlowPath)
	if err != nil {
		// A failure to load config is a fatal startup error: no partial
		// graph is ever served.
		panic(fmt.Errorf("failed to load flow configuration: %w", err))
	}
	logger.Debug("Flow configuration loaded and validated.", "steps", len(flow.Steps))

	return &App{
		inR:    inR,
		outW:   outW,
		logger: logger,
		config: appConfig,
		flow:   flow,
	}
}

// Flow returns the loaded flow model. This is primarily for testing.
func (a *App) Flow() *config.Flow {
	return a.flow
}
