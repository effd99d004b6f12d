package reconcile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the thresholds and keyword sets used by the reconciliation pipeline.
// It is passed by value into every component so each test or request can use its own.
type Config struct {
	// ReconciliationThresholdPercent is the largest discrepancy (in percent of the
	// declared total) still considered a match
	ReconciliationThresholdPercent float64 `yaml:"reconciliation_threshold_percent"`
	// MinDiscrepancyForRetryPercent is the discrepancy below which a mismatch is
	// accepted without asking the model for corrections
	MinDiscrepancyForRetryPercent float64 `yaml:"min_discrepancy_for_retry_percent"`
	MaxRetryAttempts              int     `yaml:"max_retry_attempts"`

	MathTolerancePercent     float64 `yaml:"math_tolerance_percent"`
	QuantityMedianMultiplier float64 `yaml:"quantity_median_multiplier"`
	QuantityCeiling          float64 `yaml:"quantity_ceiling"`
	IQRMultiplier            float64 `yaml:"iqr_multiplier"`
	OutlierSumEpsilon        float64 `yaml:"outlier_sum_epsilon"`

	ForbiddenKeywords []string `yaml:"forbidden_keywords"`
	SummaryQualifiers []string `yaml:"summary_qualifiers"`
	// LevyKeywords may be followed by "on", "for" or "at" and any description
	LevyKeywords []string `yaml:"levy_keywords"`

	Confidence ConfidenceLevels `yaml:"confidence"`
}

// ConfidenceLevels are the scores the validator assigns
type ConfidenceLevels struct {
	Normal          float64 `yaml:"normal"`
	MathMismatch    float64 `yaml:"math_mismatch"`
	AmountOutlier   float64 `yaml:"amount_outlier"`
	QuantityOutlier float64 `yaml:"quantity_outlier"`
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() Config {
	return Config{
		ReconciliationThresholdPercent: 0.01,
		MinDiscrepancyForRetryPercent:  2.0,
		MaxRetryAttempts:               3,
		MathTolerancePercent:           5,
		QuantityMedianMultiplier:       50,
		QuantityCeiling:                500,
		IQRMultiplier:                  1.5,
		OutlierSumEpsilon:              0.01,
		ForbiddenKeywords: []string{
			"total", "subtotal", "sub total", "grand total",
			"tax", "vat", "gst", "cgst", "sgst", "igst",
			"discount", "fee", "charge", "amount due",
			"carry forward", "shipping", "net amount", "round off",
		},
		SummaryQualifiers: []string{
			"sub", "grand", "net", "gross", "final", "bill", "invoice", "amount",
			"payable", "due", "balance", "round", "off", "rounding", "less", "add",
			"plus", "service", "delivery", "handling", "state", "central",
			"integrated", "sales", "output", "input", "carry", "forward", "brought",
			"b", "f", "c", "rs", "inr", "usd", "eur", "gbp", "of", "on", "at", "the",
			"and", "incl", "including", "excl", "rate", "value", "page", "this",
		},
		LevyKeywords: []string{
			"tax", "vat", "gst", "cgst", "sgst", "igst", "discount", "round off",
		},
		Confidence: ConfidenceLevels{
			Normal:          0.95,
			MathMismatch:    0.75,
			AmountOutlier:   0.5,
			QuantityOutlier: 0.4,
		},
	}
}

// LoadConfig reads a YAML rules file, overlaying it on top of DefaultConfig.
// Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing rules file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if c.ReconciliationThresholdPercent < 0 {
		return fmt.Errorf("reconciliation_threshold_percent must not be negative")
	}
	if c.MinDiscrepancyForRetryPercent < 0 {
		return fmt.Errorf("min_discrepancy_for_retry_percent must not be negative")
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must not be negative")
	}
	if c.MathTolerancePercent < 0 {
		return fmt.Errorf("math_tolerance_percent must not be negative")
	}
	if c.QuantityMedianMultiplier <= 0 || c.QuantityCeiling <= 0 {
		return fmt.Errorf("quantity outlier limits must be positive")
	}
	if c.IQRMultiplier < 0 {
		return fmt.Errorf("iqr_multiplier must not be negative")
	}
	if c.OutlierSumEpsilon < 0 {
		return fmt.Errorf("outlier_sum_epsilon must not be negative")
	}
	for name, v := range map[string]float64{
		"normal":           c.Confidence.Normal,
		"math_mismatch":    c.Confidence.MathMismatch,
		"amount_outlier":   c.Confidence.AmountOutlier,
		"quantity_outlier": c.Confidence.QuantityOutlier,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("confidence.%s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}
