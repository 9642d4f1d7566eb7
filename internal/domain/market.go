package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Book is a traded pair: major asset priced in minor asset.
type Book struct {
	Major string // traded asset, e.g. "usdt"
	Minor string // pricing asset, e.g. "mxn"
}

// ParseBook parses the exchange book form "major_minor".
func ParseBook(s string) (Book, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Book{}, fmt.Errorf("invalid book %q, want major_minor", s)
	}
	return Book{Major: parts[0], Minor: parts[1]}, nil
}

func (b Book) String() string {
	return b.Major + "_" + b.Minor
}

// Ticker is the top of book at one instant.
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Balances maps lowercase currency code to available amount.
type Balances map[string]decimal.Decimal

// Available returns the available balance for a currency, zero when absent.
func (b Balances) Available(currency string) decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	return b[strings.ToLower(currency)]
}
