package recon

import (
	"github.com/shopspring/decimal"

	"pharmacy-reconciliation-service/pkg/errors"
)

// Config controls bucketing, scoring cutoffs and match classification for a
// reconciliation run.
type Config struct {
	// ValueBucketWidth is the size, in currency units, of one value bucket
	// used during grouping. Candidate pairs are only drawn from a record's
	// own bucket and its immediate neighbors, so two records whose amounts
	// differ by more than roughly twice this width are never compared. The
	// default of 10 is a reproducible heuristic, not a tuned optimum.
	ValueBucketWidth int64 `json:"value_bucket_width"`

	// DateToleranceDays bounds how far apart, in calendar days, two records
	// may be and still be compared (default 1).
	DateToleranceDays int `json:"date_tolerance_days"`

	// MinConfidence is the cutoff below which a scored pair does not become
	// a match (default 0.3).
	MinConfidence float64 `json:"min_confidence"`

	// ExactThreshold classifies a match as exact when confidence exceeds it
	// (default 0.95).
	ExactThreshold float64 `json:"exact_threshold"`

	// ApproxThreshold classifies a match as approximate when confidence
	// exceeds it (default 0.8); anything matched below is a pattern match.
	ApproxThreshold float64 `json:"approx_threshold"`
}

// DefaultConfig returns the default reconciliation configuration.
func DefaultConfig() *Config {
	return &Config{
		ValueBucketWidth:  10,
		DateToleranceDays: 1,
		MinConfidence:     0.3,
		ExactThreshold:    0.95,
		ApproxThreshold:   0.8,
	}
}

// Validate checks the configuration for values that would make a run
// meaningless.
func (c *Config) Validate() error {
	if c.ValueBucketWidth <= 0 {
		return errors.ConfigurationError("value_bucket_width", c.ValueBucketWidth, nil).
			WithSuggestion("Use a positive bucket width, e.g. 10")
	}
	if c.DateToleranceDays < 0 {
		return errors.ConfigurationError("date_tolerance_days", c.DateToleranceDays, nil).
			WithSuggestion("Use zero or a positive day tolerance")
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return errors.ConfigurationError("min_confidence", c.MinConfidence, nil).
			WithSuggestion("Use a cutoff in (0, 1], e.g. 0.3")
	}
	if c.ExactThreshold <= c.ApproxThreshold {
		return errors.ConfigurationError("exact_threshold", c.ExactThreshold, nil).
			WithSuggestion("The exact threshold must exceed the approximate threshold")
	}
	if c.ApproxThreshold <= c.MinConfidence {
		return errors.ConfigurationError("approx_threshold", c.ApproxThreshold, nil).
			WithSuggestion("The approximate threshold must exceed the minimum confidence")
	}
	return nil
}

func (c *Config) bucketWidth() decimal.Decimal {
	return decimal.NewFromInt(c.ValueBucketWidth)
}
