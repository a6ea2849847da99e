package engine_v1

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/commission"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/slippage"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// BacktestConfig is the full run configuration. It is immutable for the life
// of a run: Parse validates once and the engine reads from it afterwards.
type BacktestConfig struct {
	InitialCapital  float64              `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting capital in account currency,minimum=0"`
	StartTime       time.Time            `yaml:"start_time" json:"start_time" validate:"required" jsonschema:"title=Start Time,description=Inclusive start of the backtest period"`
	EndTime         time.Time            `yaml:"end_time" json:"end_time" validate:"required" jsonschema:"title=End Time,description=Inclusive end of the backtest period"`
	CommissionModel commission.ModelName `yaml:"commission_model" json:"commission_model" jsonschema:"title=Commission Model,description=How commissions are priced"`
	CommissionRate  float64              `yaml:"commission_rate" json:"commission_rate" validate:"gte=0" jsonschema:"title=Commission Rate,description=Rate or flat fee for the commission model,minimum=0"`
	SlippageModel   slippage.ModelName   `yaml:"slippage_model" json:"slippage_model" jsonschema:"title=Slippage Model,description=How fill prices deviate from the reference"`
	SlippageRate    float64              `yaml:"slippage_rate" json:"slippage_rate" validate:"gte=0" jsonschema:"title=Slippage Rate,description=Fractional slippage rate,minimum=0"`
	PartialFills    bool                 `yaml:"partial_fills" json:"partial_fills" jsonschema:"title=Partial Fills,description=Allow fills smaller than the requested quantity"`
	Seed            int64                `yaml:"seed" json:"seed" jsonschema:"title=Seed,description=Seed for all simulated randomness"`
	TradingHours    TradingHours         `yaml:"trading_hours" json:"trading_hours" jsonschema:"title=Trading Hours,description=Daily session window; empty means always open"`
	Benchmark       string               `yaml:"benchmark" json:"benchmark" jsonschema:"title=Benchmark,description=Optional benchmark ticker for relative metrics"`
	AllowShort      bool                 `yaml:"allow_short" json:"allow_short" jsonschema:"title=Allow Short,description=Permit short positions and long-to-short flips"`
	RiskFraction    float64              `yaml:"risk_fraction" json:"risk_fraction" validate:"gt=0,lte=1" jsonschema:"title=Risk Fraction,description=Fraction of portfolio value committed per signal,minimum=0,maximum=1"`
	RiskLimits      risk.Limits          `yaml:"risk_limits" json:"risk_limits" jsonschema:"title=Risk Limits,description=Portfolio risk limits enforced per order"`
	CheckRisk       bool                 `yaml:"check_risk" json:"check_risk" jsonschema:"title=Check Risk,description=Enforce risk limits on every order"`
}

// DefaultConfig returns a config with every optional knob at its default.
// Start and end times still have to be set by the caller.
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:  100000,
		CommissionModel: commission.ModelNamePercentage,
		CommissionRate:  0.001,
		SlippageModel:   slippage.ModelNameFixed,
		SlippageRate:    0,
		PartialFills:    false,
		Seed:            42,
		RiskFraction:    0.1,
		RiskLimits:      risk.DefaultLimits(),
		CheckRisk:       true,
	}
}

// ParseConfig unmarshals and validates a YAML config document.
func ParseConfig(content []byte) (BacktestConfig, error) {
	config := DefaultConfig()

	if err := yaml.Unmarshal(content, &config); err != nil {
		return BacktestConfig{}, errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return BacktestConfig{}, err
	}

	return config, nil
}

// Validate enforces the structural invariants: positive capital,
// non-negative rates, start strictly before end.
func (c *BacktestConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid config", err)
	}

	if !c.StartTime.Before(c.EndTime) {
		return errors.Newf(errors.ErrCodeBacktestConfigError,
			"start time %s must be before end time %s", c.StartTime, c.EndTime)
	}

	return nil
}

// GenerateSchema builds the JSON schema describing BacktestConfig.
func (c *BacktestConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if strings.Contains(t.String(), "commission.ModelName") {
				return &jsonschema.Schema{Type: "string", Enum: commission.AllModels}
			}

			if strings.Contains(t.String(), "slippage.ModelName") {
				return &jsonschema.Schema{Type: "string", Enum: slippage.AllModels}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for the v1 backtest engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON renders the config schema as indented JSON.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
