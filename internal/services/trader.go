package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/bitsobot/internal/domain"
	"github.com/makerbot/bitsobot/internal/exchange"
	"github.com/makerbot/bitsobot/internal/pricing"
)

var log = logrus.WithField("component", "trader")

// Ledger is the persistence surface the trader needs. The ledger is the
// single source of truth for which orders are active; the trader keeps no
// parallel in-memory id lists that could drift from it.
type Ledger interface {
	Insert(ctx context.Context, o domain.Order) error
	UpdateStatus(ctx context.Context, oid string, status domain.OrderStatus) error
	ListActive(ctx context.Context) ([]domain.Order, error)
	CountActive(ctx context.Context, side domain.Side) (int, error)
}

// Config holds the runtime knobs for the trading cycle.
type Config struct {
	Book             domain.Book
	TradeAmount      decimal.Decimal
	FeeFallback      decimal.Decimal // used when the fee endpoint fails
	MaxActivePerSide int
	DriftThreshold   decimal.Decimal // relative bid drop that triggers the advisory
	Pricing          pricing.Config
}

// Trader runs one trading cycle at a time: reconcile active orders against
// the exchange, quote, then place new orders that pass admission control.
// No error escapes a cycle; remote failures abandon the step until the next
// scheduled cycle.
type Trader struct {
	exchange exchange.Client
	ledger   Ledger
	cfg      Config
}

func NewTrader(client exchange.Client, ledger Ledger, cfg Config) *Trader {
	return &Trader{
		exchange: client,
		ledger:   ledger,
		cfg:      cfg,
	}
}

// RunCycle executes one full trading cycle. Reconciliation always precedes
// new placements, so a just-completed buy's sell is placed before fresh
// quoting for the cycle.
func (t *Trader) RunCycle(ctx context.Context) {
	log.Debug("starting trading cycle")

	t.reconcile(ctx)

	fee := t.currentFee(ctx)

	ticker, err := t.exchange.Ticker(ctx, t.cfg.Book.String())
	if err != nil {
		log.Errorf("fetch ticker failed, skipping cycle: %v", err)
		return
	}

	quote, err := pricing.Compute(ticker, fee, t.cfg.TradeAmount, t.cfg.Pricing)
	if err != nil {
		log.Errorf("pricing failed, skipping cycle: %v", err)
		return
	}
	log.Infof("quote: buy=%s sell=%s (bid=%s ask=%s fee=%s)",
		quote.BuyPrice, quote.SellPrice, ticker.Bid, ticker.Ask, fee)

	// Sell side first, mirroring reconciliation order: inventory is turned
	// over before new inventory is acquired.
	t.placeSell(ctx, fee, quote.SellPrice, quote.BuyPrice)
	t.placeBuy(ctx, quote.BuyPrice, quote.SellPrice)
}

// currentFee fetches the fee fraction, falling back to the configured value
// when the endpoint fails. Fee rates move rarely; a stale fallback beats
// skipping the cycle.
func (t *Trader) currentFee(ctx context.Context) decimal.Decimal {
	fee, err := t.exchange.Fee(ctx, t.cfg.Book.String())
	if err != nil {
		log.Warnf("fetch fee failed, using fallback %s: %v", t.cfg.FeeFallback, err)
		return t.cfg.FeeFallback
	}
	return fee
}

// reconcile queries the remote status of every locally active order and
// applies the resulting transitions. Lookup failures leave local state
// untouched; there is no retry inside the same cycle.
func (t *Trader) reconcile(ctx context.Context) {
	active, err := t.ledger.ListActive(ctx)
	if err != nil {
		log.Errorf("list active orders failed: %v", err)
		return
	}
	if len(active) == 0 {
		return
	}
	log.Debugf("reconciling %d active orders", len(active))

	// One ticker fetch serves all drift advisories this cycle.
	var driftTicker *domain.Ticker
	for _, o := range active {
		status, err := t.exchange.LookupOrder(ctx, o.OID)
		if err != nil {
			if errors.Is(err, exchange.ErrAlreadyClosed) {
				// The order no longer exists as open; the common cause is a
				// fill that raced the lookup, so this maps to completed.
				log.Infof("order %s already closed remotely, marking completed", o.OID)
				if err := t.ledger.UpdateStatus(ctx, o.OID, domain.OrderStatusCompleted); err != nil {
					log.Errorf("mark order %s completed failed: %v", o.OID, err)
				}
				continue
			}
			log.Errorf("lookup order %s failed, keeping local state: %v", o.OID, err)
			continue
		}

		switch status {
		case exchange.RemoteOpen:
			if o.IsSell() && t.cfg.DriftThreshold.IsPositive() {
				if driftTicker == nil {
					driftTicker, err = t.exchange.Ticker(ctx, t.cfg.Book.String())
					if err != nil {
						log.Debugf("drift check skipped, ticker unavailable: %v", err)
						driftTicker = &domain.Ticker{}
					}
				}
				t.adviseDrift(o, driftTicker)
			}
		case exchange.RemoteComplete:
			if err := t.ledger.UpdateStatus(ctx, o.OID, domain.OrderStatusCompleted); err != nil {
				// Skip the spawn: the order stays active locally and the next
				// cycle will see the completion again, so spawning now would
				// risk placing the sell twice.
				log.Errorf("mark order %s completed failed: %v", o.OID, err)
				continue
			}
			if o.IsBuy() {
				log.Infof("buy order %s completed, placing matching sell", o.OID)
				t.spawnSell(ctx, o)
			}
		case exchange.RemoteCancelled:
			log.Infof("order %s cancelled remotely", o.OID)
			if err := t.ledger.UpdateStatus(ctx, o.OID, domain.OrderStatusCancelled); err != nil {
				log.Errorf("mark order %s cancelled failed: %v", o.OID, err)
			}
		}
	}
}

// adviseDrift logs when the bid has fallen far enough below a resting sell
// that repricing should be considered. Advisory only; nothing is cancelled
// or replaced automatically.
func (t *Trader) adviseDrift(o domain.Order, ticker *domain.Ticker) {
	if ticker == nil || !ticker.Bid.IsPositive() {
		return
	}
	floor := o.Price.Mul(decimal.NewFromInt(1).Sub(t.cfg.DriftThreshold))
	if ticker.Bid.LessThan(floor) {
		log.Warnf("sell order %s has drifted: bid %s < %s (price %s, threshold %s); consider repricing",
			o.OID, ticker.Bid, floor, o.Price, t.cfg.DriftThreshold)
	}
}

// spawnSell places the sell that realizes a completed buy. The sell price is
// the target committed at buy time; only when that target no longer covers
// the current fee is it raised to the fresh breakeven.
func (t *Trader) spawnSell(ctx context.Context, buy domain.Order) {
	fee := t.currentFee(ctx)

	var sellPrice decimal.Decimal
	if buy.TargetPrice != nil {
		sellPrice = *buy.TargetPrice
	} else {
		// Legacy rows without a stored target: recompute from the buy's own
		// price with the fee-relative formula.
		cfg := t.cfg.Pricing
		cfg.Strategy = pricing.StrategyFeeRelative
		q, err := pricing.Compute(&domain.Ticker{Bid: buy.Price, Ask: buy.Price}, fee, buy.Amount, cfg)
		if err != nil {
			log.Errorf("recompute sell price for buy %s failed: %v", buy.OID, err)
			return
		}
		sellPrice = q.SellPrice
		log.Warnf("buy %s has no stored target price, recomputed sell=%s", buy.OID, sellPrice)
	}

	t.placeSell(ctx, fee, sellPrice, buy.Price)
}

// placeSell submits a sell after admission control, raising the price to the
// current breakeven first when it would otherwise lock in a loss. The guard
// applies to every sell: fee rates can change between quoting and placement.
func (t *Trader) placeSell(ctx context.Context, fee, sellPrice, fromBuyPrice decimal.Decimal) {
	breakeven := pricing.Breakeven(fromBuyPrice, t.cfg.TradeAmount, fee)
	if sellPrice.LessThan(breakeven) {
		raised := breakeven.RoundCeil(2)
		log.Warnf("sell price %s below current breakeven %s, raising to %s", sellPrice, breakeven, raised)
		sellPrice = raised
	}

	refusal, err := t.admit(ctx, domain.SideSell, fee, sellPrice)
	if err != nil {
		log.Errorf("sell admission check failed: %v", err)
		return
	}
	if refusal != RefusalNone {
		log.Warnf("sell refused: %s", refusal)
		return
	}

	oid, err := t.exchange.PlaceOrder(ctx, t.cfg.Book.String(), domain.SideSell, t.cfg.TradeAmount, sellPrice)
	if err != nil {
		log.Errorf("place sell order failed: %v", err)
		return
	}
	log.Infof("sell order placed: oid=%s price=%s amount=%s", oid, sellPrice, t.cfg.TradeAmount)

	if err := t.ledger.Insert(ctx, domain.Order{
		OID:         oid,
		Book:        t.cfg.Book.String(),
		Side:        domain.SideSell,
		Price:       sellPrice,
		Amount:      t.cfg.TradeAmount,
		TargetPrice: &fromBuyPrice, // informational: the buy it answers
	}); err != nil {
		log.Errorf("record sell order %s failed: %v", oid, err)
	}
}

// placeBuy submits a buy after admission control, committing the sell price
// to honor once the buy completes.
func (t *Trader) placeBuy(ctx context.Context, buyPrice, targetSellPrice decimal.Decimal) {
	refusal, err := t.admit(ctx, domain.SideBuy, decimal.Zero, buyPrice)
	if err != nil {
		log.Errorf("buy admission check failed: %v", err)
		return
	}
	if refusal != RefusalNone {
		log.Warnf("buy refused: %s", refusal)
		return
	}

	oid, err := t.exchange.PlaceOrder(ctx, t.cfg.Book.String(), domain.SideBuy, t.cfg.TradeAmount, buyPrice)
	if err != nil {
		log.Errorf("place buy order failed: %v", err)
		return
	}
	log.Infof("buy order placed: oid=%s price=%s amount=%s target=%s", oid, buyPrice, t.cfg.TradeAmount, targetSellPrice)

	if err := t.ledger.Insert(ctx, domain.Order{
		OID:         oid,
		Book:        t.cfg.Book.String(),
		Side:        domain.SideBuy,
		Price:       buyPrice,
		Amount:      t.cfg.TradeAmount,
		TargetPrice: &targetSellPrice,
	}); err != nil {
		log.Errorf("record buy order %s failed: %v", oid, err)
	}
}
