package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pharmacy-reconciliation-service/cmd/conferencia/config"
	"pharmacy-reconciliation-service/internal/parsers"
	"pharmacy-reconciliation-service/internal/recon"
	"pharmacy-reconciliation-service/internal/reporter"
	"pharmacy-reconciliation-service/pkg/logger"
)

var (
	reconcileSources      []string
	reconcileRulesFile    string
	reconcileOutputFormat string
	reconcileOutputFile   string
	reconcileBucketWidth  int64
	reconcileDateTol      int
	reconcileMinConf      float64
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile records across sources",
	Long: `Reconcile loads two or more record sources, pairs records across them
with tolerance-based scoring, and writes a report of matches, discrepancies and
unmatched records.

Examples:
  conferencia reconcile --source bank=extrato.csv --source caixa=caixa.csv
  conferencia reconcile --source bank=extrato.csv --source caixa=caixa.csv \
    --rules rules.json --output-format json --output-file report.json
  conferencia reconcile --source bank=extrato.csv --source caixa=caixa.csv \
    --date-tolerance 2 --min-confidence 0.4`,

	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringArrayVarP(&reconcileSources, "source", "s", nil, "source as name=file.csv, repeatable (required)")
	reconcileCmd.Flags().StringVar(&reconcileRulesFile, "rules", "", "JSON file of custom matching rules")
	reconcileCmd.Flags().StringVarP(&reconcileOutputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	reconcileCmd.Flags().StringVarP(&reconcileOutputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().Int64Var(&reconcileBucketWidth, "bucket-width", 0, "value bucket width in currency units")
	reconcileCmd.Flags().IntVar(&reconcileDateTol, "date-tolerance", -1, "date tolerance in days")
	reconcileCmd.Flags().Float64Var(&reconcileMinConf, "min-confidence", 0, "minimum match confidence")

	reconcileCmd.MarkFlagRequired("source")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("reconcile")

	specs, err := config.ParseSourceSpecs(reconcileSources)
	if err != nil {
		return err
	}

	rules, err := config.LoadRules(reconcileRulesFile)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(reconcileOutputFormat)
	if err != nil {
		return err
	}

	var sources []*recon.Source
	for _, spec := range specs {
		parser, err := parsers.NewRecordParser(config.CreateParserConfig(spec.ID))
		if err != nil {
			return err
		}
		records, stats, err := parser.ParseFile(spec.Path)
		if err != nil {
			return err
		}
		if stats.SkippedRows > 0 {
			log.WithFields(logger.Fields{
				"source":  spec.ID,
				"skipped": stats.SkippedRows,
			}).Warn("rows skipped during parsing")
		}
		sources = append(sources, &recon.Source{ID: spec.ID, Records: records})
	}

	engine, err := recon.NewEngine(
		config.CreateReconConfig(reconcileBucketWidth, reconcileDateTol, reconcileMinConf), log)
	if err != nil {
		return err
	}

	report, err := engine.Reconcile(sources, rules)
	if err != nil {
		return err
	}

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	output := os.Stdout
	if reconcileOutputFile != "" {
		file, err := os.Create(reconcileOutputFile)
		if err != nil {
			return err
		}
		defer file.Close()
		output = file
	}

	if err := generator.Generate(report, output); err != nil {
		return err
	}

	if reconcileOutputFile != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", reconcileOutputFile)
	}
	return nil
}
