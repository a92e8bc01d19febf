package fuzzy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"venda balcao", "venda balcao", 1.0},
		{"VENDA BALCAO", "venda balcao", 1.0}, // case-insensitive
		{"", "", 1.0},
		{"venda", "", 0.0},
		{"", "venda", 0.0},
		{"abcd", "abce", 0.75},  // 1 edit over length 4
		{"abcd", "wxyz", 0.0},   // all 4 positions differ
		{"ab", "abcd", 0.5},     // 2 inserts over longer length 4
	}

	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_Range(t *testing.T) {
	pairs := [][2]string{
		{"farmacia central", "farmacia"},
		{"x", "very long description text"},
		{"pix recebido", "pix enviado"},
	}

	for _, p := range pairs {
		got := Similarity(p[0], p[1])
		if got < 0.0 || got > 1.0 {
			t.Errorf("Similarity(%q, %q) = %f out of [0,1]", p[0], p[1], got)
		}
	}
}

func TestToleranceFraction(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"100", "100", "0"},
		{"100", "99", "0.01"},
		{"99", "100", "0.01"}, // symmetric
		{"100", "90", "0.1"},
		{"0", "0", "0"},
		{"0", "50", "1"},
		{"-100", "100", "0"}, // magnitudes compared
	}

	for _, tt := range tests {
		a := decimal.RequireFromString(tt.a)
		b := decimal.RequireFromString(tt.b)
		want := decimal.RequireFromString(tt.want)

		if got := ToleranceFraction(a, b); !got.Equal(want) {
			t.Errorf("ToleranceFraction(%s, %s) = %s, want %s", tt.a, tt.b, got.String(), want.String())
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.NewFromInt(100)
	b := decimal.NewFromInt(98)

	if !WithinTolerance(a, b, 2.0) {
		t.Error("2% difference should be within a 2% tolerance")
	}

	if WithinTolerance(a, b, 1.0) {
		t.Error("2% difference should exceed a 1% tolerance")
	}
}
