package exchange

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/makerbot/bitsobot/internal/domain"
)

// MarketData is the read-only subset of Client that Paper delegates to, so
// dry runs still quote against live prices.
type MarketData interface {
	Fee(ctx context.Context, book string) (decimal.Decimal, error)
	Ticker(ctx context.Context, book string) (*domain.Ticker, error)
}

// Paper simulates the trading surface: orders get uuid ids and rest open
// until cancelled (or force-filled by tests). Market reads pass through.
type Paper struct {
	data     MarketData
	mu       sync.Mutex
	balances domain.Balances
	orders   map[string]RemoteStatus
}

func NewPaper(data MarketData, balances domain.Balances) *Paper {
	copied := make(domain.Balances, len(balances))
	for k, v := range balances {
		copied[k] = v
	}
	return &Paper{
		data:     data,
		balances: copied,
		orders:   make(map[string]RemoteStatus),
	}
}

func (p *Paper) Balances(ctx context.Context) (domain.Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(domain.Balances, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *Paper) Fee(ctx context.Context, book string) (decimal.Decimal, error) {
	return p.data.Fee(ctx, book)
}

func (p *Paper) Ticker(ctx context.Context, book string) (*domain.Ticker, error) {
	return p.data.Ticker(ctx, book)
}

func (p *Paper) PlaceOrder(ctx context.Context, book string, side domain.Side, amount, price decimal.Decimal) (string, error) {
	oid := uuid.NewString()
	p.mu.Lock()
	p.orders[oid] = RemoteOpen
	p.mu.Unlock()
	log.Infof("[paper] placed %s %s %s@%s oid=%s", side, book, amount, price, oid)
	return oid, nil
}

func (p *Paper) LookupOrder(ctx context.Context, oid string) (RemoteStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.orders[oid]
	if !ok {
		return "", ErrAlreadyClosed
	}
	return status, nil
}

func (p *Paper) CancelOrder(ctx context.Context, oid string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status, ok := p.orders[oid]; !ok || status != RemoteOpen {
		return false, nil
	}
	p.orders[oid] = RemoteCancelled
	return true, nil
}

// Fill marks an open paper order complete. Test hook.
func (p *Paper) Fill(oid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orders[oid] == RemoteOpen {
		p.orders[oid] = RemoteComplete
	}
}
