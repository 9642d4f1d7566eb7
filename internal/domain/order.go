package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side on the exchange.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the local lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order is the persisted record of a limit order placed by this bot.
// Rows are never deleted; the ledger is the audit trail.
type Order struct {
	OID    string // exchange-assigned order id, unique
	Book   string // e.g. "usdt_mxn"
	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal

	// TargetPrice carries the sell price committed when a buy is placed; the
	// spawned sell must reuse it verbatim. For a sell order it records the
	// buy price it was spawned from (informational).
	TargetPrice *decimal.Decimal

	Status    OrderStatus
	IsActive  bool // always Status == active; kept as a column for indexing
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) IsBuy() bool  { return o.Side == SideBuy }
func (o *Order) IsSell() bool { return o.Side == SideSell }
