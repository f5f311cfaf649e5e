package core

// convert.go turns raw spreadsheet cell text into typed values.
//
// Sales exports arrive with the usual spreadsheet artifacts: Excel formula
// prefixes (="R-001"), stray quotes, thousands separators and surrounding
// whitespace. CleanCell strips those before any parsing happens.

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// transactionDateLayouts are tried in order. Two-digit years come first.
var transactionDateLayouts = []string{
	"2/1/06 15:04:05",
	"2/1/2006 15:04:05",
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// ParseTransactionDate parses a day/month/year timestamp with a two- or
// four-digit year. Leading zeros on day, month and hour are optional.
func ParseTransactionDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range transactionDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseAmount strips thousands separators and parses the remainder as a
// decimal. Text that still is not a number after stripping yields zero, not
// an error; the caller's required-field check rejects the zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.ReplaceAll(CleanCell(s), ",", "")
	if s == "" {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
