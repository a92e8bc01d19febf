package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewRecord_Normalization(t *testing.T) {
	date := time.Date(2024, 1, 15, 14, 37, 22, 0, time.Local)
	r := NewRecord("bank", "B001", date, decimal.NewFromFloat(150.005), "Dinheiro", "123.456.789-01", "  VENDA BALCAO  ")

	if !r.Amount.Equal(decimal.NewFromFloat(150.01)) {
		t.Errorf("Expected amount 150.01 (half away from zero), got %s", r.Amount.String())
	}

	if r.Identifier != "12345678901" {
		t.Errorf("Expected digits-only identifier, got %q", r.Identifier)
	}

	if r.PaymentType != PaymentCash {
		t.Errorf("Expected lowercased payment type %q, got %q", PaymentCash, r.PaymentType)
	}

	if r.OriginalText != "VENDA BALCAO" {
		t.Errorf("Expected trimmed original text, got %q", r.OriginalText)
	}

	if r.Date.Hour() != 0 || r.Date.Location() != time.UTC {
		t.Errorf("Expected day-precision UTC date, got %s", r.Date)
	}
}

func TestRecord_Validate(t *testing.T) {
	valid := NewRecord("bank", "B001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		decimal.NewFromFloat(100.00), "", "", "")

	if err := valid.Validate(); err != nil {
		t.Errorf("Valid record should pass validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"empty record ID", func(r *Record) { r.RecordID = "" }},
		{"empty source ID", func(r *Record) { r.SourceID = "  " }},
		{"zero date", func(r *Record) { r.Date = time.Time{} }},
		{"unnormalized amount", func(r *Record) { r.Amount = decimal.NewFromFloat(10.005) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *valid
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestRecord_Key(t *testing.T) {
	a := NewRecord("bank", "001", time.Now(), decimal.NewFromInt(10), "", "", "")
	b := NewRecord("caixa", "001", time.Now(), decimal.NewFromInt(10), "", "", "")

	if a.Key() == b.Key() {
		t.Error("Records with the same RecordID in different sources must have distinct keys")
	}
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	r := NewRecord("bank", "B001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		decimal.NewFromFloat(-42.50), PaymentCard, "12345678901", "CARTAO DEBITO")

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !decoded.Equals(r) {
		t.Errorf("Round trip mismatch: got %s, want %s", decoded.String(), r.String())
	}
}

func TestParseQueryAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"150.00", "150", false},
		{"150,00", "150", false},
		{"1.234,56", "1234.56", false},
		{"1234.56", "1234.56", false},
		{"R$ 99,90", "99.9", false},
		{"0", "0", false},
		{"0,005", "0.01", false}, // rounds half away from zero
		{"", "", true},
		{"abc", "", true},
		{"-10.00", "", true},
		{"12,34,56", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQueryAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %s", tt.input, got.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParseQueryAmount(%q) = %s, want %s", tt.input, got.String(), want.String())
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"123.456.789-01", "12345678901"},
		{"12345678901", "12345678901"},
		{"12.345.678/0001-99", "12345678000199"},
		{"", ""},
		{"no digits", ""},
	}

	for _, tt := range tests {
		if got := NormalizeIdentifier(tt.input); got != tt.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDaysApart(t *testing.T) {
	a := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC)

	if got := DaysApart(a, b); got != 1 {
		t.Errorf("Expected 1 calendar day apart, got %d", got)
	}

	if got := DaysApart(b, a); got != 1 {
		t.Errorf("DaysApart should be symmetric, got %d", got)
	}

	if got := DaysApart(a, a); got != 0 {
		t.Errorf("Expected 0 days apart for same date, got %d", got)
	}
}

func TestSharedDigits(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"12345678901", "123.456.789-01", 11}, // formatting ignored
		{"12345678901", "345678", 6},          // masked overlap
		{"12345678901", "99999", 0},
		{"", "12345678901", 0},
		{"111222", "222333", 3},
	}

	for _, tt := range tests {
		if got := SharedDigits(tt.a, tt.b); got != tt.want {
			t.Errorf("SharedDigits(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizeAmount_HalfAwayFromZero(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{10.005, "10.01"},
		{-10.005, "-10.01"},
		{10.004, "10"},
		{10.994, "10.99"},
	}

	for _, tt := range tests {
		got := NormalizeAmount(decimal.NewFromFloat(tt.input))
		want, _ := decimal.NewFromString(tt.want)
		if !got.Equal(want) {
			t.Errorf("NormalizeAmount(%v) = %s, want %s", tt.input, got.String(), want.String())
		}
	}
}
