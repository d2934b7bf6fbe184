package domain

import (
	"sort"
	"strings"
	"time"
)

// Transaction represents one statement line extracted by the model.
// At most one of Debit and Credit is set; both are positive amounts.
type Transaction struct {
	Date        string   `json:"date"`        // ideally YYYY-MM-DD
	Description string   `json:"description"` // cleaned free text
	Debit       *float64 `json:"debit"`       // money out, nil if credit
	Credit      *float64 `json:"credit"`      // money in, nil if debit
	Balance     float64  `json:"balance"`     // running balance after the transaction
	SourceFile  string   `json:"sourceFile"`  // statement filename it came from
}

// dateLayouts are tried in order when ordering transactions.
// The model is asked for ISO dates but may fall back to the statement's own format.
// Numeric slash dates are read day first, so 03/04/2024 is 3 April. The
// month-first layouts only match when the second field is above 12, as in 01/31/2024.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"01/02/2006",
	"1/2/2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// ParseDate parses a transaction date using the known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParsedDate returns the transaction date as a time.Time, if it can be parsed.
func (t Transaction) ParsedDate() (time.Time, bool) {
	return ParseDate(t.Date)
}

// SortByDate orders transactions ascending by date. The sort is stable, so
// transactions sharing a date keep their original relative order.
// Unparseable dates go last.
func SortByDate(txs []Transaction) {
	type key struct {
		t  time.Time
		ok bool
	}
	keys := make([]key, len(txs))
	idx := make([]int, len(txs))
	for i := range txs {
		idx[i] = i
		t, ok := txs[i].ParsedDate()
		keys[i] = key{t: t, ok: ok}
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		if !ka.ok {
			return false
		}
		return ka.t.Before(kb.t)
	})

	sorted := make([]Transaction, len(txs))
	for i, j := range idx {
		sorted[i] = txs[j]
	}
	copy(txs, sorted)
}
