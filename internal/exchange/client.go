// Package exchange talks to the Bitso REST API (v3). The services layer
// consumes the Client interface; Bitso is the real implementation and Paper
// simulates the trading surface for dry runs.
package exchange

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/makerbot/bitsobot/internal/domain"
)

// RemoteStatus is the normalized remote order state.
type RemoteStatus string

const (
	RemoteOpen      RemoteStatus = "open"
	RemoteComplete  RemoteStatus = "complete"
	RemoteCancelled RemoteStatus = "cancelled"
)

// ErrAlreadyClosed signals the exchange no longer knows the order as open
// (Bitso error code 0312). The common cause is a fill racing the lookup, so
// callers map it to a local completed state, not cancelled.
var ErrAlreadyClosed = errors.New("exchange: order not found or already closed")

// Client is the exchange surface the trading cycle needs.
type Client interface {
	// Balances returns available funds per currency.
	Balances(ctx context.Context) (domain.Balances, error)
	// Fee returns the maker fee fraction (0..1) for a book.
	Fee(ctx context.Context, book string) (decimal.Decimal, error)
	// Ticker returns the current top of book.
	Ticker(ctx context.Context, book string) (*domain.Ticker, error)
	// PlaceOrder submits a limit order and returns the exchange order id.
	PlaceOrder(ctx context.Context, book string, side domain.Side, amount, price decimal.Decimal) (string, error)
	// LookupOrder fetches the remote status of one order. Returns
	// ErrAlreadyClosed when the order no longer exists as open.
	LookupOrder(ctx context.Context, oid string) (RemoteStatus, error)
	// CancelOrder asks the exchange to cancel an open order.
	CancelOrder(ctx context.Context, oid string) (bool, error)
}
