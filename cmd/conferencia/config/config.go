// Package config builds component configurations from CLI flags and files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"pharmacy-reconciliation-service/internal/fuzzy"
	"pharmacy-reconciliation-service/internal/parsers"
	"pharmacy-reconciliation-service/internal/recon"
	"pharmacy-reconciliation-service/internal/reporter"
	"pharmacy-reconciliation-service/pkg/errors"
)

// SourceSpec is one parsed --source flag value.
type SourceSpec struct {
	ID   string
	Path string
}

// ParseSourceSpecs parses repeated --source name=file.csv flags.
func ParseSourceSpecs(specs []string) ([]SourceSpec, error) {
	if len(specs) == 0 {
		return nil, errors.New(errors.CategoryReconciliation, errors.CodeNoSources,
			"no sources provided").
			WithSuggestion("Pass at least one --source name=file.csv")
	}

	seen := make(map[string]bool)
	var parsed []SourceSpec
	for _, spec := range specs {
		name, path, found := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		path = strings.TrimSpace(path)
		if !found || name == "" || path == "" {
			return nil, errors.ConfigurationError("source", spec, nil).
				WithSuggestion("Use the form --source name=file.csv")
		}
		if seen[name] {
			return nil, errors.ConfigurationError("source", spec, nil).
				WithSuggestion(fmt.Sprintf("Source %q is given twice; names must be unique", name))
		}
		seen[name] = true
		parsed = append(parsed, SourceSpec{ID: name, Path: path})
	}
	return parsed, nil
}

// CreateParserConfig builds the CSV parser configuration for one source.
func CreateParserConfig(sourceID string) *parsers.RecordParserConfig {
	return parsers.DefaultRecordParserConfig(sourceID)
}

// CreateReconConfig builds the reconciliation engine configuration from flags.
// Zero flag values keep the engine defaults.
func CreateReconConfig(bucketWidth int64, dateToleranceDays int, minConfidence float64) *recon.Config {
	cfg := recon.DefaultConfig()
	if bucketWidth > 0 {
		cfg.ValueBucketWidth = bucketWidth
	}
	if dateToleranceDays >= 0 {
		cfg.DateToleranceDays = dateToleranceDays
	}
	if minConfidence > 0 {
		cfg.MinConfidence = minConfidence
	}
	return cfg
}

// CreateFuzzyOptions builds the fuzzy engine options from flags. Zero flag
// values keep the engine defaults.
func CreateFuzzyOptions(closeTolerance, fuzzyTolerance float64) fuzzy.Options {
	opts := fuzzy.DefaultOptions()
	if closeTolerance > 0 {
		opts.CloseTolerancePercent = closeTolerance
	}
	if fuzzyTolerance > 0 {
		opts.FuzzyTolerancePercent = fuzzyTolerance
	}
	return opts
}

// CreateReportConfig builds the report configuration for the chosen format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(strings.ToLower(format))
	if !cfg.Format.IsValid() {
		return nil, errors.ConfigurationError("output-format", format, nil).
			WithSuggestion("Use console, json, csv or xlsx")
	}
	return cfg, nil
}

// LoadRules reads reconciliation rules from a JSON file. A missing path means
// no custom rules.
func LoadRules(path string) ([]*recon.Rule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFileMalformed, path, err)
	}

	var rules []*recon.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.FileError(errors.CodeFileMalformed, path, err)
	}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}
