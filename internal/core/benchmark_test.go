package core

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Conversion Function Benchmarks
// ============================================================================

// BenchmarkParseAmount benchmarks amount parsing, run once per data row.
func BenchmarkParseAmount(b *testing.B) {
	testCases := []string{
		"123",
		"45.78",
		"1,234.56",
		"1,234,567.89",
		"  999.99  ",
		`="250.00"`,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseAmount(tc)
		}
	}
}

// BenchmarkParseTransactionDate benchmarks the layout fallback chain.
func BenchmarkParseTransactionDate(b *testing.B) {
	testCases := []string{
		"01/06/24 10:00:00",
		"1/6/2024 9:05:00",
		"31/12/2023 23:59:59",
		"not a date",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseTransactionDate(tc)
		}
	}
}

// ============================================================================
// Pipeline Benchmarks
// ============================================================================

func benchRows(n int) []RawRow {
	rows := make([]RawRow, 0, n+1)
	rows = append(rows, headerRow())
	for i := 0; i < n; i++ {
		rows = append(rows, salesRow("01/06/24 10:00:00", fmt.Sprintf("R%06d", i), "Cut", "Anna", "1,050.00"))
	}
	return rows
}

// BenchmarkNormalizeAll benchmarks normalizing a typical daily export.
func BenchmarkNormalizeAll(b *testing.B) {
	n := NewNormalizer(DefaultColumnMap(), decimal.RequireFromString("0.8696"))
	rows := benchRows(1000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := n.NormalizeAll(rows); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDistinctReceipts benchmarks the in-file duplicate scan.
func BenchmarkDistinctReceipts(b *testing.B) {
	n := NewNormalizer(DefaultColumnMap(), decimal.Zero)
	rows, err := n.NormalizeAll(benchRows(5000))
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		distinctReceipts(rows)
	}
}
