package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pharmacy-reconciliation-service/cmd/conferencia/config"
	"pharmacy-reconciliation-service/internal/fuzzy"
	"pharmacy-reconciliation-service/internal/ledger"
	"pharmacy-reconciliation-service/internal/models"
	"pharmacy-reconciliation-service/internal/parsers"
	"pharmacy-reconciliation-service/internal/valuematch"
	"pharmacy-reconciliation-service/pkg/logger"
)

var (
	conferRecordsFile  string
	conferValue        string
	conferSourceID     string
	conferConferredLog string
	conferSmart        bool
	conferCloseTol     float64
	conferFuzzyTol     float64
)

var conferCmd = &cobra.Command{
	Use:   "confer",
	Short: "Confer a value against a record set",
	Long: `Confer searches a record set for an operator-typed value and, when the
match is unique, confirms it and reserves the record against double conference.

Previously conferred records are loaded from the conference log and excluded
from matching; a confirmed match is appended to the same log.

Examples:
  conferencia confer --records caixa.csv --value 150,00
  conferencia confer --records caixa.csv --value "89,90" --conferred-log conferidos.csv
  conferencia confer --records caixa.csv --value 150,00 --smart`,

	RunE: runConfer,
}

func init() {
	rootCmd.AddCommand(conferCmd)

	conferCmd.Flags().StringVarP(&conferRecordsFile, "records", "r", "", "path to the record CSV file (required)")
	conferCmd.Flags().StringVar(&conferValue, "value", "", "value to confer, decimal comma or dot (required)")
	conferCmd.Flags().StringVar(&conferSourceID, "source-id", "caixa", "source tag for the record file")
	conferCmd.Flags().StringVar(&conferConferredLog, "conferred-log", "", "CSV file of confirmed conferences, read and appended")
	conferCmd.Flags().BoolVar(&conferSmart, "smart", false, "show tiered fuzzy matches instead of confirming")
	conferCmd.Flags().Float64Var(&conferCloseTol, "close-tolerance", 0, "close tier tolerance percent")
	conferCmd.Flags().Float64Var(&conferFuzzyTol, "fuzzy-tolerance", 0, "fuzzy tier tolerance percent")

	conferCmd.MarkFlagRequired("records")
	conferCmd.MarkFlagRequired("value")
}

// logSink forwards match events to the structured audit log.
type logSink struct {
	logger logger.Logger
}

func (s logSink) Emit(ev valuematch.Event) {
	s.logger.WithFields(logger.Fields{
		"outcome":   string(ev.Outcome),
		"record":    ev.RecordRef,
		"query":     ev.QueryValue,
		"timestamp": ev.Timestamp.Format(time.RFC3339),
	}).Info("conference event")
}

func runConfer(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("confer")

	parser, err := parsers.NewRecordParser(config.CreateParserConfig(conferSourceID))
	if err != nil {
		return err
	}
	records, _, err := parser.ParseFile(conferRecordsFile)
	if err != nil {
		return err
	}

	session := ledger.NewSession(nil)
	if conferConferredLog != "" {
		if err := reserveFromLog(session.Ledger(), conferConferredLog); err != nil {
			return err
		}
	}

	if conferSmart {
		return runSmartSearch(records, session.Ledger())
	}

	searcher := valuematch.NewSearcher(session.Ledger(), logSink{logger: log})
	result, err := searcher.Search(conferValue, records)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case valuematch.OutcomeNotFound:
		fmt.Printf("No record matches %s.\n", result.Query.StringFixed(2))
		printSuggestions(result.Query, records)
		return nil

	case valuematch.OutcomeAmbiguous:
		fmt.Printf("%d records match %s; disambiguate and confer by record ID:\n",
			len(result.Matches), result.Query.StringFixed(2))
		for _, rec := range result.Matches {
			fmt.Printf("  %-20s %s  %s\n", rec.Key(), rec.Date.Format("2006-01-02"), rec.OriginalText)
		}
		return nil
	}

	match := result.Matches[0]
	item, err := session.Confirm(match)
	if err != nil {
		searcher.EmitAlreadyConferred(match, result.Query)
		return err
	}

	fmt.Printf("Conferred %s: %s (%s)\n", result.Query.StringFixed(2), match.Key(), item.ConferredID)

	if conferConferredLog != "" {
		return appendToLog(conferConferredLog, item)
	}
	return nil
}

func runSmartSearch(records []*models.Record, reserved *ledger.Ledger) error {
	engine := fuzzy.NewEngine(config.CreateFuzzyOptions(conferCloseTol, conferFuzzyTol))

	excluded := make(map[string]bool)
	for _, rec := range records {
		if reserved.IsReserved(rec.Key()) {
			excluded[rec.Key()] = true
		}
	}

	result := engine.SmartSearch(fuzzy.ParseQuery(conferValue), records, excluded)

	printTier := func(name string, matches []*fuzzy.RankedMatch) {
		if len(matches) == 0 {
			return
		}
		fmt.Printf("%s:\n", name)
		for _, m := range matches {
			fmt.Printf("  [%.2f] %-20s %10s  %s\n",
				m.Confidence, m.Record.Key(),
				m.Record.AbsAmount().StringFixed(2), m.Record.OriginalText)
		}
	}
	printTier("Exact", result.Exact)
	printTier("Close", result.Close)
	printTier("Fuzzy", result.Fuzzy)

	if len(result.Exact)+len(result.Close)+len(result.Fuzzy) == 0 {
		fmt.Println("No matches in any tier.")
	}
	if len(result.Suggestions) > 0 {
		fmt.Print("Did you mean:")
		for _, s := range result.Suggestions {
			fmt.Printf(" %s", s.StringFixed(2))
		}
		fmt.Println("?")
	}
	return nil
}

func printSuggestions(query decimal.Decimal, records []*models.Record) {
	engine := fuzzy.NewEngine(config.CreateFuzzyOptions(conferCloseTol, conferFuzzyTol))
	q := fuzzy.Query{Amount: query, HasAmount: true}
	suggestions := engine.Suggest(q, records)
	if len(suggestions) == 0 {
		return
	}
	fmt.Print("Did you mean:")
	for _, s := range suggestions {
		fmt.Printf(" %s", s.StringFixed(2))
	}
	fmt.Println("?")
}

// reserveFromLog marks record keys from a previous conference log as reserved.
func reserveFromLog(l *ledger.Ledger, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			continue
		}
		if len(row) > 1 {
			l.Reserve(row[1])
		}
	}
	return nil
}

// appendToLog appends a confirmed conference to the log, writing the header
// when the file is new.
func appendToLog(path string, item *models.ConferredItem) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if isNew {
		if err := w.Write([]string{"conferred_id", "record", "amount", "date", "conferred_at"}); err != nil {
			return err
		}
	}
	if err := w.Write([]string{
		item.ConferredID,
		item.Record.Key(),
		item.Record.AbsAmount().StringFixed(2),
		item.Record.Date.Format("2006-01-02"),
		item.ConferredAt.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
