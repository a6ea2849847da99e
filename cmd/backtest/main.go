package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/tradesim-lab/tradesim/internal/backtest/engine"
	engine_v1 "github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/datasource"
	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/strategy"
	"github.com/tradesim-lab/tradesim/internal/types"
)

// backtestAction wires the engine together: config, DuckDB-backed data
// source, strategy, and a progress bar over the step loop.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	resultsFolder := cmd.String("results")
	schemaOnly := cmd.Bool("schema")

	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLog.Sync()

	eng := engine_v1.NewBacktestV1(appLog)

	if schemaOnly {
		schema, err := eng.GetConfigSchema()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	if err := eng.SetConfigPath(configPath); err != nil {
		return err
	}

	source, err := datasource.NewDuckDBDataSource(":memory:", appLog)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := eng.SetDataSource(source); err != nil {
		return err
	}

	if err := eng.SetDataPath(dataPath); err != nil {
		return err
	}

	if err := eng.SetResultsFolder(resultsFolder); err != nil {
		return err
	}

	// The CLI ships a single built-in pass-through strategy: it holds
	// every bar and exists so a run can be driven entirely by protective
	// levels or used to validate data plumbing. Real strategies come in
	// through the library API.
	if err := eng.LoadStrategy(&strategy.Func{
		StrategyName: "hold",
		Handler: func(strategy.Context) ([]types.Signal, error) {
			return nil, nil
		},
	}); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onStart := engine.OnRunStartCallback(func(runID, strategyName string, total int) error {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(fmt.Sprintf("Backtesting %s", strategyName)),
			progressbar.OptionShowCount(),
		)

		return nil
	})
	onData := engine.OnProcessDataCallback(func(current, total int) error {
		return bar.Set(current)
	})
	onEnd := engine.OnRunEndCallback(func(runID, folder string) {
		fmt.Printf("\nrun %s finished, results in %s\n", runID, folder)
	})

	return eng.Run(ctx, engine.LifecycleCallbacks{
		OnRunStart:    &onStart,
		OnProcessData: &onData,
		OnRunEnd:      &onEnd,
	})
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a portfolio backtest over historical bar data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML backtest configuration",
				Value:   "config/backtest.yaml",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the market data Parquet file",
				Value:   "data/bars.parquet",
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Output directory for metrics, snapshots, and journals",
				Value:   "results",
			},
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "Print the JSON schema of the configuration and exit",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
