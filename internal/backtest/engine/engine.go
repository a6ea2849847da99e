package engine

import (
	"context"

	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/datasource"
	"github.com/tradesim-lab/tradesim/internal/strategy"
)

// Lifecycle callback types for backtest phases. Callbacks returning an error
// abort the run.

// OnRunStartCallback fires once before the step loop, after the data source
// has been counted.
type OnRunStartCallback func(runID string, strategyName string, totalDataPoints int) error

// OnProcessDataCallback fires for each trading timestamp processed.
type OnProcessDataCallback func(current int, total int) error

// OnRunEndCallback fires after the run completes, successfully or not.
type OnRunEndCallback func(runID string, resultFolderPath string)

// LifecycleCallbacks holds the lifecycle hooks for a backtest run. Nil fields
// are skipped.
type LifecycleCallbacks struct {
	OnRunStart    *OnRunStartCallback
	OnProcessData *OnProcessDataCallback
	OnRunEnd      *OnRunEndCallback
}

type Engine interface {
	// Initialize configures the engine from YAML content.
	Initialize(config string) error
	// SetConfigPath configures the engine from a YAML file on disk.
	SetConfigPath(path string) error
	// SetDataSource sets the market data source for the run.
	SetDataSource(source datasource.DataSource) error
	// SetDataPath initializes the configured data source from a data file.
	SetDataPath(path string) error
	// SetResultsFolder sets the output directory for run artifacts.
	SetResultsFolder(folder string) error
	// LoadStrategy loads the trading strategy to drive the run.
	LoadStrategy(s strategy.Strategy) error
	// Run executes the backtest. The context can cancel a run between
	// steps; use LifecycleCallbacks to observe progress.
	Run(ctx context.Context, callbacks LifecycleCallbacks) error
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
