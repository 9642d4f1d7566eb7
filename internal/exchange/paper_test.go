package exchange

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/makerbot/bitsobot/internal/domain"
)

type staticMarket struct {
	fee    decimal.Decimal
	ticker domain.Ticker
}

func (s *staticMarket) Fee(ctx context.Context, book string) (decimal.Decimal, error) {
	return s.fee, nil
}

func (s *staticMarket) Ticker(ctx context.Context, book string) (*domain.Ticker, error) {
	t := s.ticker
	return &t, nil
}

func TestPaperOrderLifecycle(t *testing.T) {
	p := NewPaper(&staticMarket{}, domain.Balances{"usdt": decimal.NewFromInt(10)})
	ctx := context.Background()

	oid, err := p.PlaceOrder(ctx, "usdt_mxn", domain.SideBuy, decimal.NewFromInt(1), decimal.RequireFromString("19.00"))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	status, err := p.LookupOrder(ctx, oid)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if status != RemoteOpen {
		t.Fatalf("expected open, got %s", status)
	}

	p.Fill(oid)
	status, err = p.LookupOrder(ctx, oid)
	if err != nil {
		t.Fatalf("lookup after fill: %v", err)
	}
	if status != RemoteComplete {
		t.Fatalf("expected complete, got %s", status)
	}

	// Filled orders can no longer be cancelled.
	ok, err := p.CancelOrder(ctx, oid)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ok {
		t.Fatal("cancel of a filled order should not be confirmed")
	}
}

func TestPaperLookupUnknown(t *testing.T) {
	p := NewPaper(&staticMarket{}, nil)
	_, err := p.LookupOrder(context.Background(), "nope")
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestPaperCancelOpenOrder(t *testing.T) {
	p := NewPaper(&staticMarket{}, nil)
	ctx := context.Background()

	oid, err := p.PlaceOrder(ctx, "usdt_mxn", domain.SideSell, decimal.NewFromInt(1), decimal.RequireFromString("19.10"))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	ok, err := p.CancelOrder(ctx, oid)
	if err != nil || !ok {
		t.Fatalf("expected confirmed cancel, got ok=%v err=%v", ok, err)
	}

	status, err := p.LookupOrder(ctx, oid)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if status != RemoteCancelled {
		t.Fatalf("expected cancelled, got %s", status)
	}
}
