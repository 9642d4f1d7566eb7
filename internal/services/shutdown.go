package services

import (
	"context"

	"github.com/makerbot/bitsobot/internal/domain"
)

// CancelReport summarizes a cancel-all sweep.
type CancelReport struct {
	Attempted int
	Cancelled int
	Failed    int
}

// Shutdown cancels every locally active order, one at a time, so that a
// failure on one order never blocks the rest. It then logs the final
// balances. Errors are reported but never abort the sweep.
func (t *Trader) Shutdown(ctx context.Context) CancelReport {
	var report CancelReport

	active, err := t.ledger.ListActive(ctx)
	if err != nil {
		log.Errorf("list active orders for shutdown failed: %v", err)
		return report
	}

	for _, o := range active {
		report.Attempted++
		ok, err := t.exchange.CancelOrder(ctx, o.OID)
		if err != nil {
			report.Failed++
			log.Errorf("cancel order %s failed: %v", o.OID, err)
			continue
		}
		if !ok {
			report.Failed++
			log.Warnf("cancel order %s not confirmed by exchange", o.OID)
			continue
		}
		report.Cancelled++
		log.Infof("order %s cancelled", o.OID)
		if err := t.ledger.UpdateStatus(ctx, o.OID, domain.OrderStatusCancelled); err != nil {
			log.Errorf("mark order %s cancelled failed: %v", o.OID, err)
		}
	}

	log.Infof("shutdown sweep: attempted=%d cancelled=%d failed=%d",
		report.Attempted, report.Cancelled, report.Failed)
	t.LogBalances(ctx)
	return report
}

// LogBalances reports the available balance of both legs of the book. Used
// at startup and after the shutdown sweep.
func (t *Trader) LogBalances(ctx context.Context) {
	balances, err := t.exchange.Balances(ctx)
	if err != nil {
		log.Errorf("fetch balances failed: %v", err)
		return
	}
	log.Infof("balances: %s=%s %s=%s",
		t.cfg.Book.Major, balances.Available(t.cfg.Book.Major),
		t.cfg.Book.Minor, balances.Available(t.cfg.Book.Minor))
}
