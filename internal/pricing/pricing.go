package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/makerbot/bitsobot/internal/domain"
)

// StrategyKind selects the quoting formula.
type StrategyKind string

const (
	// StrategyFixedMarkup undercuts the ask and sells at a fixed absolute
	// margin above the buy.
	StrategyFixedMarkup StrategyKind = "fixed-markup"
	// StrategyFeeRelative buys at the bid and derives the sell from the
	// target profit, clamped between breakeven and a max markup factor.
	StrategyFeeRelative StrategyKind = "fee-relative"
)

// Config is the strategy value object: one engine, two formulas, no
// per-pair code forks.
type Config struct {
	Strategy StrategyKind

	// fixed-markup knobs
	Undercut    decimal.Decimal // fraction below ask, e.g. 0.001
	FixedMargin decimal.Decimal // absolute sell margin in minor currency

	// fee-relative knobs
	TargetProfit  decimal.Decimal // fraction, e.g. 0.0005
	MaxSellFactor decimal.Decimal // cap on sell/buy, e.g. 1.10
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFixedMarkup:
		if c.Undercut.IsNegative() || c.Undercut.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("undercut out of range: %s", c.Undercut)
		}
		if c.FixedMargin.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("fixedMargin must be positive: %s", c.FixedMargin)
		}
	case StrategyFeeRelative:
		if c.TargetProfit.IsNegative() {
			return fmt.Errorf("targetProfit must not be negative: %s", c.TargetProfit)
		}
		if c.MaxSellFactor.LessThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("maxSellFactor must exceed 1: %s", c.MaxSellFactor)
		}
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	return nil
}

// Quote is a buy/sell price pair for one cycle.
type Quote struct {
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Compute maps (ticker, fee, amount, config) to a quote. Pure: identical
// inputs give identical outputs. A nil or empty ticker is an error; the
// caller skips the cycle without side effects.
//
// Rounding is asymmetric on the fee-relative path: buy rounds down, sell
// rounds up, both to 2 decimal places, so rounding error can only widen the
// realized margin, never narrow it.
func Compute(ticker *domain.Ticker, fee, amount decimal.Decimal, cfg Config) (Quote, error) {
	if err := cfg.Validate(); err != nil {
		return Quote{}, err
	}
	if ticker == nil {
		return Quote{}, fmt.Errorf("ticker unavailable")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return Quote{}, fmt.Errorf("amount must be positive: %s", amount)
	}

	switch cfg.Strategy {
	case StrategyFixedMarkup:
		if ticker.Ask.LessThanOrEqual(decimal.Zero) {
			return Quote{}, fmt.Errorf("ticker ask unavailable")
		}
		buy := ticker.Ask.Mul(one.Sub(cfg.Undercut))
		return Quote{BuyPrice: buy, SellPrice: buy.Add(cfg.FixedMargin)}, nil

	case StrategyFeeRelative:
		if ticker.Bid.LessThanOrEqual(decimal.Zero) {
			return Quote{}, fmt.Errorf("ticker bid unavailable")
		}
		if fee.IsNegative() || fee.GreaterThanOrEqual(one) {
			return Quote{}, fmt.Errorf("fee fraction out of range: %s", fee)
		}
		buy := ticker.Bid.RoundFloor(2)
		breakeven := Breakeven(buy, amount, fee)

		sell := buy.Mul(one.Add(cfg.TargetProfit))
		if sell.LessThan(breakeven) {
			sell = breakeven
		}
		// The max-factor cap applies after the breakeven floor and may push
		// the sell back below breakeven when the fee is large; the lifecycle
		// manager re-checks profitability before acting on the quote.
		if cap := buy.Mul(cfg.MaxSellFactor); sell.GreaterThan(cap) {
			sell = cap
		}
		return Quote{BuyPrice: buy, SellPrice: sell.RoundCeil(2)}, nil
	}
	return Quote{}, fmt.Errorf("unknown strategy %q", cfg.Strategy)
}

// Breakeven is the sell price at which, after the exchange takes its fee
// from the sold amount, proceeds equal the buy cost.
func Breakeven(buyPrice, amount, fee decimal.Decimal) decimal.Decimal {
	effective := amount.Sub(amount.Mul(fee))
	if effective.LessThanOrEqual(decimal.Zero) {
		return buyPrice
	}
	return buyPrice.Mul(amount).Div(effective)
}
