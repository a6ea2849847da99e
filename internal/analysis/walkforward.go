package analysis

import (
	"sort"
	"time"

	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// OptimizationMetric names the score a walk-forward grid search maximizes.
type OptimizationMetric string

const (
	MetricSharpe      OptimizationMetric = "sharpe"
	MetricSortino     OptimizationMetric = "sortino"
	MetricCalmar      OptimizationMetric = "calmar"
	MetricReturn      OptimizationMetric = "return"
	MetricMaxDrawdown OptimizationMetric = "max_drawdown"
)

// BacktestFunc runs one backtest over [start,end] with the given parameters
// and returns its metrics. The walk-forward analyzer owns the windowing and
// the grid; the caller owns the actual simulation.
type BacktestFunc func(params map[string]float64, start, end time.Time) (types.Metrics, error)

// WalkForwardConfig partitions [Start,End] into in-sample/out-of-sample
// window pairs. Rolling mode advances the in-sample start by StepMonths
// (defaulting to OutSampleMonths); anchored mode fixes the in-sample start
// and grows only its end.
type WalkForwardConfig struct {
	Start           time.Time            `yaml:"start" json:"start"`
	End             time.Time            `yaml:"end" json:"end"`
	InSampleMonths  int                  `yaml:"in_sample_months" json:"in_sample_months"`
	OutSampleMonths int                  `yaml:"out_sample_months" json:"out_sample_months"`
	StepMonths      int                  `yaml:"step_months" json:"step_months"`
	Anchored        bool                 `yaml:"anchored" json:"anchored"`
	Metric          OptimizationMetric   `yaml:"metric" json:"metric"`
	ParamGrid       map[string][]float64 `yaml:"param_grid" json:"param_grid"`
}

// Window is one in-sample/out-of-sample pair with its search outcome.
type Window struct {
	InSampleStart    time.Time          `yaml:"in_sample_start" json:"in_sample_start"`
	InSampleEnd      time.Time          `yaml:"in_sample_end" json:"in_sample_end"`
	OutSampleStart   time.Time          `yaml:"out_sample_start" json:"out_sample_start"`
	OutSampleEnd     time.Time          `yaml:"out_sample_end" json:"out_sample_end"`
	BestParams       map[string]float64 `yaml:"best_params" json:"best_params"`
	InSampleMetrics  types.Metrics      `yaml:"in_sample_metrics" json:"in_sample_metrics"`
	OutSampleMetrics types.Metrics      `yaml:"out_sample_metrics" json:"out_sample_metrics"`
	InSampleScore    float64            `yaml:"in_sample_score" json:"in_sample_score"`
	OutSampleScore   float64            `yaml:"out_sample_score" json:"out_sample_score"`
}

// WalkForwardResult aggregates all windows. EfficiencyRatio is
// mean(oos)/mean(is); OverfittingScore is mean(max(0,(is-oos)/is)) clipped
// to [0,1] — 0 means out-of-sample held up, 1 means the edge evaporated.
type WalkForwardResult struct {
	Windows             []Window      `yaml:"windows" json:"windows"`
	EfficiencyRatio     float64       `yaml:"efficiency_ratio" json:"efficiency_ratio"`
	OverfittingScore    float64       `yaml:"overfitting_score" json:"overfitting_score"`
	CombinedOutOfSample types.Metrics `yaml:"combined_out_of_sample" json:"combined_out_of_sample"`
}

// WalkForward runs the full study: per window, grid-search the in-sample
// range, then re-run only the winning combination out-of-sample.
func WalkForward(config WalkForwardConfig, run BacktestFunc) (WalkForwardResult, error) {
	if err := validateWalkForwardConfig(config); err != nil {
		return WalkForwardResult{}, err
	}

	if config.StepMonths == 0 {
		config.StepMonths = config.OutSampleMonths
	}

	windows := partition(config)
	if len(windows) == 0 {
		return WalkForwardResult{}, errors.Newf(errors.ErrCodeInsufficientData,
			"range %s..%s is too short for %d+%d month windows",
			config.Start, config.End, config.InSampleMonths, config.OutSampleMonths)
	}

	combinations := expandGrid(config.ParamGrid)

	for i := range windows {
		window := &windows[i]

		best, bestMetrics, bestScore, err := searchInSample(config, run, window, combinations)
		if err != nil {
			return WalkForwardResult{}, err
		}

		window.BestParams = best
		window.InSampleMetrics = bestMetrics
		window.InSampleScore = bestScore

		oosMetrics, err := run(best, window.OutSampleStart, window.OutSampleEnd)
		if err != nil {
			return WalkForwardResult{}, err
		}

		window.OutSampleMetrics = oosMetrics
		window.OutSampleScore = score(oosMetrics, config.Metric)
	}

	result := WalkForwardResult{Windows: windows}
	result.EfficiencyRatio, result.OverfittingScore = efficiency(windows)
	result.CombinedOutOfSample = combineMetrics(windows)

	return result, nil
}

func validateWalkForwardConfig(config WalkForwardConfig) error {
	if config.InSampleMonths <= 0 || config.OutSampleMonths <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "window lengths must be positive")
	}

	if config.StepMonths < 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "step months cannot be negative")
	}

	if !config.Start.Before(config.End) {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"start %s must be before end %s", config.Start, config.End)
	}

	switch config.Metric {
	case MetricSharpe, MetricSortino, MetricCalmar, MetricReturn, MetricMaxDrawdown:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown optimization metric %q", config.Metric)
	}
}

func partition(config WalkForwardConfig) []Window {
	var windows []Window

	inStart := config.Start
	inEnd := inStart.AddDate(0, config.InSampleMonths, 0)

	for {
		outEnd := inEnd.AddDate(0, config.OutSampleMonths, 0)
		if outEnd.After(config.End) {
			break
		}

		windows = append(windows, Window{
			InSampleStart:  inStart,
			InSampleEnd:    inEnd,
			OutSampleStart: inEnd,
			OutSampleEnd:   outEnd,
		})

		if config.Anchored {
			inEnd = inEnd.AddDate(0, config.StepMonths, 0)
		} else {
			inStart = inStart.AddDate(0, config.StepMonths, 0)
			inEnd = inStart.AddDate(0, config.InSampleMonths, 0)
		}
	}

	return windows
}

// expandGrid builds the cartesian product of the parameter grid in a
// deterministic key order. An empty grid yields one empty combination so a
// parameterless study still runs.
func expandGrid(grid map[string][]float64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for key := range grid {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	combinations := []map[string]float64{{}}

	for _, key := range keys {
		var expanded []map[string]float64

		for _, combo := range combinations {
			for _, value := range grid[key] {
				next := make(map[string]float64, len(combo)+1)
				for k, v := range combo {
					next[k] = v
				}

				next[key] = value
				expanded = append(expanded, next)
			}
		}

		combinations = expanded
	}

	return combinations
}

func searchInSample(
	config WalkForwardConfig,
	run BacktestFunc,
	window *Window,
	combinations []map[string]float64,
) (map[string]float64, types.Metrics, float64, error) {
	var (
		best        map[string]float64
		bestMetrics types.Metrics
		bestScore   float64
		found       bool
	)

	for _, combo := range combinations {
		metrics, err := run(combo, window.InSampleStart, window.InSampleEnd)
		if err != nil {
			return nil, types.Metrics{}, 0, err
		}

		s := score(metrics, config.Metric)
		if !found || s > bestScore {
			best = combo
			bestMetrics = metrics
			bestScore = s
			found = true
		}
	}

	return best, bestMetrics, bestScore, nil
}

// score maps the configured metric to a maximization target. Max drawdown is
// negated so smaller drawdowns win.
func score(metrics types.Metrics, metric OptimizationMetric) float64 {
	switch metric {
	case MetricSharpe:
		return metrics.SharpeRatio
	case MetricSortino:
		return metrics.SortinoRatio
	case MetricCalmar:
		return metrics.CalmarRatio
	case MetricReturn:
		return metrics.TotalReturn
	case MetricMaxDrawdown:
		return -metrics.MaxDrawdown
	default:
		return 0
	}
}

func efficiency(windows []Window) (efficiencyRatio, overfittingScore float64) {
	isSum := 0.0
	oosSum := 0.0
	degradationSum := 0.0

	for _, window := range windows {
		isSum += window.InSampleScore
		oosSum += window.OutSampleScore

		if window.InSampleScore != 0 {
			degradation := (window.InSampleScore - window.OutSampleScore) / window.InSampleScore
			if degradation > 0 {
				degradationSum += degradation
			}
		}
	}

	isMean := isSum / float64(len(windows))
	oosMean := oosSum / float64(len(windows))

	if isMean != 0 {
		efficiencyRatio = oosMean / isMean
	}

	overfittingScore = degradationSum / float64(len(windows))
	if overfittingScore > 1 {
		overfittingScore = 1
	}

	if overfittingScore < 0 {
		overfittingScore = 0
	}

	return efficiencyRatio, overfittingScore
}

// combineMetrics averages the numeric fields of the out-of-sample metrics
// across windows; trade counts sum instead.
func combineMetrics(windows []Window) types.Metrics {
	n := float64(len(windows))
	combined := types.Metrics{}

	for _, window := range windows {
		m := window.OutSampleMetrics

		combined.TotalReturn += m.TotalReturn / n
		combined.AnnualizedReturn += m.AnnualizedReturn / n
		combined.CumulativeReturn += m.CumulativeReturn / n
		combined.Volatility += m.Volatility / n
		combined.DownsideDeviation += m.DownsideDeviation / n
		combined.SharpeRatio += m.SharpeRatio / n
		combined.SortinoRatio += m.SortinoRatio / n
		combined.CalmarRatio += m.CalmarRatio / n
		combined.OmegaRatio += m.OmegaRatio / n
		combined.MaxDrawdown += m.MaxDrawdown / n
		combined.AverageDrawdown += m.AverageDrawdown / n
		combined.WinRate += m.WinRate / n
		combined.ProfitFactor += m.ProfitFactor / n
		combined.AverageWin += m.AverageWin / n
		combined.AverageLoss += m.AverageLoss / n
		combined.LargestWin += m.LargestWin / n
		combined.LargestLoss += m.LargestLoss / n

		combined.TotalTrades += m.TotalTrades
		combined.WinningTrades += m.WinningTrades
		combined.LosingTrades += m.LosingTrades

		if m.MaxDrawdownDuration > combined.MaxDrawdownDuration {
			combined.MaxDrawdownDuration = m.MaxDrawdownDuration
		}
	}

	return combined
}
