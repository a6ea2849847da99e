package analysis

import (
	"math"
	"math/rand"
	"sort"

	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// percentileLevels is the fixed percentile table every distribution reports.
var percentileLevels = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// sequentialAdvanceProbability is the chance a sequential trade resample
// keeps walking forward instead of jumping to a random trade.
const sequentialAdvanceProbability = 0.8

// MonteCarloConfig controls a simulation batch. The seed is mandatory in
// spirit: an unseeded batch is not reproducible, so the zero value still
// yields a fixed stream.
type MonteCarloConfig struct {
	Simulations      int       `yaml:"simulations" json:"simulations"`
	Seed             int64     `yaml:"seed" json:"seed"`
	ConfidenceLevels []float64 `yaml:"confidence_levels" json:"confidence_levels"`
}

// ConfidenceInterval is a two-sided interval at one confidence level.
type ConfidenceInterval struct {
	Level float64 `yaml:"level" json:"level"`
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// MonteCarloResult summarizes the terminal-value distribution of one batch.
type MonteCarloResult struct {
	Mean                float64              `yaml:"mean" json:"mean"`
	Median              float64              `yaml:"median" json:"median"`
	Std                 float64              `yaml:"std" json:"std"`
	Percentiles         map[int]float64      `yaml:"percentiles" json:"percentiles"`
	ConfidenceIntervals []ConfidenceInterval `yaml:"confidence_intervals" json:"confidence_intervals"`
	ProbabilityOfProfit float64              `yaml:"probability_of_profit" json:"probability_of_profit"`
	BestCase            float64              `yaml:"best_case" json:"best_case"`
	WorstCase           float64              `yaml:"worst_case" json:"worst_case"`
}

// MonteCarlo resamples historical results into terminal-value distributions.
// All randomness flows from one seeded generator, so a fixed seed reproduces
// the batch exactly.
type MonteCarlo struct {
	config MonteCarloConfig
	rng    *rand.Rand
}

func NewMonteCarlo(config MonteCarloConfig) (*MonteCarlo, error) {
	if config.Simulations <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"simulations must be positive, got %d", config.Simulations)
	}

	for _, level := range config.ConfidenceLevels {
		if level <= 0 || level >= 1 {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter,
				"confidence level must be in (0,1), got %f", level)
		}
	}

	return &MonteCarlo{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// ResampleReturns draws simulated equity paths from a historical return
// series and compounds each into a terminal value. With block resampling,
// contiguous blocks of size min(20, n/10) are drawn instead of single
// returns, preserving short-range autocorrelation.
func (mc *MonteCarlo) ResampleReturns(returns []float64, initial float64, block bool) (MonteCarloResult, error) {
	if len(returns) == 0 {
		return MonteCarloResult{}, errors.New(errors.ErrCodeEmptySeries, "resampling requires a non-empty return series")
	}

	blockSize := 1
	if block {
		blockSize = len(returns) / 10
		if blockSize > 20 {
			blockSize = 20
		}

		if blockSize < 1 {
			blockSize = 1
		}
	}

	terminals := make([]float64, mc.config.Simulations)

	for trial := range terminals {
		value := initial

		for drawn := 0; drawn < len(returns); {
			start := mc.rng.Intn(len(returns))

			for offset := 0; offset < blockSize && drawn < len(returns); offset++ {
				value *= 1 + returns[(start+offset)%len(returns)]
				drawn++
			}
		}

		terminals[trial] = value
	}

	return mc.summarize(terminals, initial)
}

// ResampleTrades draws simulated trade sequences from a historical PnL list
// and sums each into a terminal value. The sequential mode is an
// order-respecting walk: 80% of steps advance to the next historical trade,
// 20% jump to a random one.
func (mc *MonteCarlo) ResampleTrades(pnls []float64, initial float64, sequential bool) (MonteCarloResult, error) {
	if len(pnls) == 0 {
		return MonteCarloResult{}, errors.New(errors.ErrCodeEmptySeries, "resampling requires a non-empty trade list")
	}

	terminals := make([]float64, mc.config.Simulations)

	for trial := range terminals {
		value := initial

		if sequential {
			idx := mc.rng.Intn(len(pnls))

			for step := 0; step < len(pnls); step++ {
				value += pnls[idx]

				if mc.rng.Float64() < sequentialAdvanceProbability {
					idx = (idx + 1) % len(pnls)
				} else {
					idx = mc.rng.Intn(len(pnls))
				}
			}
		} else {
			for step := 0; step < len(pnls); step++ {
				value += pnls[mc.rng.Intn(len(pnls))]
			}
		}

		terminals[trial] = value
	}

	return mc.summarize(terminals, initial)
}

// Parametric fits a normal distribution to the historical returns and
// compounds synthetic paths of the same length.
func (mc *MonteCarlo) Parametric(returns []float64, initial float64) (MonteCarloResult, error) {
	if len(returns) == 0 {
		return MonteCarloResult{}, errors.New(errors.ErrCodeEmptySeries, "parametric simulation requires a non-empty return series")
	}

	mu := meanOf(returns)
	sigma := populationStdDev(returns)

	terminals := make([]float64, mc.config.Simulations)

	for trial := range terminals {
		value := initial

		for step := 0; step < len(returns); step++ {
			value *= 1 + mu + sigma*mc.rng.NormFloat64()
		}

		terminals[trial] = value
	}

	return mc.summarize(terminals, initial)
}

func (mc *MonteCarlo) summarize(terminals []float64, initial float64) (MonteCarloResult, error) {
	sorted := make([]float64, len(terminals))
	copy(sorted, terminals)
	sort.Float64s(sorted)

	result := MonteCarloResult{
		Mean:        meanOf(sorted),
		Median:      percentile(sorted, 50),
		Std:         populationStdDev(sorted),
		Percentiles: make(map[int]float64, len(percentileLevels)),
		BestCase:    sorted[len(sorted)-1],
		WorstCase:   sorted[0],
	}

	for _, level := range percentileLevels {
		result.Percentiles[level] = percentile(sorted, float64(level))
	}

	profitable := 0

	for _, v := range sorted {
		if v > initial {
			profitable++
		}
	}

	result.ProbabilityOfProfit = float64(profitable) / float64(len(sorted))

	for _, level := range mc.config.ConfidenceLevels {
		tail := (1 - level) / 2 * 100

		result.ConfidenceIntervals = append(result.ConfidenceIntervals, ConfidenceInterval{
			Level: level,
			Lower: percentile(sorted, tail),
			Upper: percentile(sorted, 100-tail),
		})
	}

	return result, nil
}

// percentile interpolates linearly on an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)

	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
