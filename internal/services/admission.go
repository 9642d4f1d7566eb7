package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/makerbot/bitsobot/internal/domain"
	"github.com/makerbot/bitsobot/internal/pricing"
)

// Refusal is an expected admission outcome. A refused placement is part of
// normal operation and is reported distinctly from transient failures.
type Refusal int

const (
	RefusalNone Refusal = iota
	RefusalTooManyOrders
	RefusalInsufficientBalance
)

func (r Refusal) String() string {
	switch r {
	case RefusalNone:
		return "admitted"
	case RefusalTooManyOrders:
		return "too many active orders"
	case RefusalInsufficientBalance:
		return "insufficient balance"
	default:
		return fmt.Sprintf("refusal(%d)", int(r))
	}
}

// admit decides whether a new order on the given side may be placed. The
// returned error covers only transient infrastructure failures; policy
// decisions come back as a Refusal. The fee parameter matters only for
// fee-relative sells, where the fee share of the base amount must also be
// on hand.
func (t *Trader) admit(ctx context.Context, side domain.Side, fee, price decimal.Decimal) (Refusal, error) {
	count, err := t.ledger.CountActive(ctx, side)
	if err != nil {
		return RefusalNone, fmt.Errorf("count active %s orders: %w", side, err)
	}
	if count >= t.cfg.MaxActivePerSide {
		return RefusalTooManyOrders, nil
	}

	balances, err := t.exchange.Balances(ctx)
	if err != nil {
		return RefusalNone, fmt.Errorf("fetch balances: %w", err)
	}

	switch side {
	case domain.SideBuy:
		need := price.Mul(t.cfg.TradeAmount)
		if balances.Available(t.cfg.Book.Minor).LessThan(need) {
			return RefusalInsufficientBalance, nil
		}
	case domain.SideSell:
		need := t.cfg.TradeAmount
		if t.cfg.Pricing.Strategy == pricing.StrategyFeeRelative {
			need = need.Add(t.cfg.TradeAmount.Mul(fee))
		}
		if balances.Available(t.cfg.Book.Major).LessThan(need) {
			return RefusalInsufficientBalance, nil
		}
	}
	return RefusalNone, nil
}
