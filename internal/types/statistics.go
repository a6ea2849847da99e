package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metrics is the immutable performance snapshot produced by the analyzer.
// Metric values are ratios and fractions, not monetary amounts, so they are
// plain floats.
type Metrics struct {
	// Returns
	TotalReturn      float64 `yaml:"total_return" json:"total_return"`
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	CumulativeReturn float64 `yaml:"cumulative_return" json:"cumulative_return"`

	// Risk
	Volatility        float64 `yaml:"volatility" json:"volatility"`
	DownsideDeviation float64 `yaml:"downside_deviation" json:"downside_deviation"`
	SharpeRatio       float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio      float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	CalmarRatio       float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	OmegaRatio        float64 `yaml:"omega_ratio" json:"omega_ratio"`

	// Drawdown
	MaxDrawdown         float64 `yaml:"max_drawdown" json:"max_drawdown"`
	AverageDrawdown     float64 `yaml:"average_drawdown" json:"average_drawdown"`
	MaxDrawdownDuration int     `yaml:"max_drawdown_duration_days" json:"max_drawdown_duration_days"`

	// Trades
	TotalTrades   int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades  int     `yaml:"losing_trades" json:"losing_trades"`
	WinRate       float64 `yaml:"win_rate" json:"win_rate"`
	ProfitFactor  float64 `yaml:"profit_factor" json:"profit_factor"`
	AverageWin    float64 `yaml:"average_win" json:"average_win"`
	AverageLoss   float64 `yaml:"average_loss" json:"average_loss"`
	LargestWin    float64 `yaml:"largest_win" json:"largest_win"`
	LargestLoss   float64 `yaml:"largest_loss" json:"largest_loss"`

	// Benchmark comparison, present only when a benchmark series was supplied.
	Benchmark *BenchmarkMetrics `yaml:"benchmark,omitempty" json:"benchmark,omitempty"`
}

// BenchmarkMetrics compares the equity curve against a benchmark series on
// their date-aligned intersection.
type BenchmarkMetrics struct {
	Alpha            float64 `yaml:"alpha" json:"alpha"`
	Beta             float64 `yaml:"beta" json:"beta"`
	Correlation      float64 `yaml:"correlation" json:"correlation"`
	TrackingError    float64 `yaml:"tracking_error" json:"tracking_error"`
	InformationRatio float64 `yaml:"information_ratio" json:"information_ratio"`
}

// WriteMetrics writes the metrics snapshot to a YAML file.
func WriteMetrics(path string, metrics Metrics) error {
	data, err := yaml.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics to file: %w", err)
	}

	return nil
}
