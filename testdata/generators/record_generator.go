// Command record_generator produces paired bank and register CSV files for
// exercising the conference and reconciliation tools against realistic data.
//
// Usage:
//
//	go run record_generator.go -count 500 -match-rate 0.8 -out-dir ../fixtures
//
// The bank file mirrors a fraction of the register records with small value
// and date perturbations, so a reconciliation run over the pair produces a
// predictable mix of exact, approximate and unmatched outcomes.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

var paymentTypes = []string{"dinheiro", "cartao", "pix", "convenio"}

var descriptions = []string{
	"VENDA BALCAO", "PIX RECEBIDO", "CARTAO CREDITO", "VENDA CONVENIO",
	"DEVOLUCAO", "PAGTO FORNECEDOR", "TED RECEBIDA",
}

type generator struct {
	count     int
	matchRate float64
	startDate time.Time
	rng       *rand.Rand
}

type row struct {
	id          string
	date        time.Time
	amount      decimal.Decimal
	paymentType string
	identifier  string
	text        string
}

func (g *generator) registerRows() []row {
	rows := make([]row, 0, g.count)
	for i := 0; i < g.count; i++ {
		cents := g.rng.Int63n(100000) + 100 // 1.00 to 1000.99
		r := row{
			id:          fmt.Sprintf("CX%05d", i+1),
			date:        g.startDate.AddDate(0, 0, g.rng.Intn(30)),
			amount:      decimal.New(cents, -2),
			paymentType: paymentTypes[g.rng.Intn(len(paymentTypes))],
			text:        descriptions[g.rng.Intn(len(descriptions))],
		}
		if g.rng.Float64() < 0.4 {
			r.identifier = fmt.Sprintf("%011d", g.rng.Int63n(100000000000))
		}
		rows = append(rows, r)
	}
	return rows
}

// bankRows mirrors a fraction of the register rows, sometimes perturbing the
// amount by a few cents or shifting the date by one day, and adds unmatched
// noise rows.
func (g *generator) bankRows(register []row) []row {
	var rows []row
	for i, src := range register {
		if g.rng.Float64() > g.matchRate {
			continue
		}
		r := row{
			id:          fmt.Sprintf("BK%05d", i+1),
			date:        src.date,
			amount:      src.amount,
			paymentType: src.paymentType,
			identifier:  src.identifier,
			text:        src.text,
		}
		switch g.rng.Intn(10) {
		case 0:
			r.amount = r.amount.Add(decimal.New(g.rng.Int63n(200)-100, -2))
		case 1:
			r.date = r.date.AddDate(0, 0, 1)
		}
		rows = append(rows, r)
	}

	noise := g.count / 10
	for i := 0; i < noise; i++ {
		cents := g.rng.Int63n(100000) + 100
		rows = append(rows, row{
			id:     fmt.Sprintf("BKN%04d", i+1),
			date:   g.startDate.AddDate(0, 0, g.rng.Intn(30)),
			amount: decimal.New(cents, -2),
			text:   "LANCAMENTO AVULSO",
		})
	}
	return rows
}

func writeCSV(path string, rows []row) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"data", "valor", "forma", "cpf", "historico", "codigo"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.date.Format("02/01/2006"),
			r.amount.StringFixed(2),
			r.paymentType,
			r.identifier,
			r.text,
			r.id,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func main() {
	count := flag.Int("count", 200, "number of register records")
	matchRate := flag.Float64("match-rate", 0.8, "fraction of register records mirrored in the bank file")
	seed := flag.Int64("seed", 42, "random seed")
	startDate := flag.String("start-date", "2024-01-01", "first record date (YYYY-MM-DD)")
	outDir := flag.String("out-dir", ".", "output directory")
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}

	g := &generator{
		count:     *count,
		matchRate: *matchRate,
		startDate: start,
		rng:       rand.New(rand.NewSource(*seed)),
	}

	register := g.registerRows()
	bank := g.bankRows(register)

	registerPath := filepath.Join(*outDir, "caixa.csv")
	bankPath := filepath.Join(*outDir, "extrato.csv")

	if err := writeCSV(registerPath, register); err != nil {
		log.Fatalf("writing %s: %v", registerPath, err)
	}
	if err := writeCSV(bankPath, bank); err != nil {
		log.Fatalf("writing %s: %v", bankPath, err)
	}

	fmt.Printf("wrote %d register rows to %s\n", len(register), registerPath)
	fmt.Printf("wrote %d bank rows to %s\n", len(bank), bankPath)
}
