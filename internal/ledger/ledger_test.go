package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/makerbot/bitsobot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOrder(oid string, side domain.Side, price string) domain.Order {
	target := decimal.RequireFromString("17.50")
	return domain.Order{
		OID:         oid,
		Book:        "usdt_mxn",
		Side:        side,
		Price:       decimal.RequireFromString(price),
		Amount:      decimal.RequireFromString("1"),
		TargetPrice: &target,
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testOrder("oid-1", domain.SideBuy, "17.40")))

	dup := testOrder("oid-1", domain.SideBuy, "99.99")
	require.ErrorIs(t, s.Insert(ctx, dup), ErrDuplicateOrder)

	// the stored record must remain the first
	got, err := s.Get(ctx, "oid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Price.Equal(decimal.RequireFromString("17.40")))
	require.Equal(t, domain.OrderStatusActive, got.Status)
	require.True(t, got.IsActive)
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testOrder("oid-1", domain.SideBuy, "17.40")))
	require.NoError(t, s.UpdateStatus(ctx, "oid-1", domain.OrderStatusCompleted))

	got, err := s.Get(ctx, "oid-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, got.Status)
	require.False(t, got.IsActive)

	// terminal states never transition again
	require.NoError(t, s.UpdateStatus(ctx, "oid-1", domain.OrderStatusCancelled))
	got, err = s.Get(ctx, "oid-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, got.Status)
}

func TestUpdateStatus_UnknownOID(t *testing.T) {
	s := openTestStore(t)
	// unknown id is a logged no-op, not an error
	require.NoError(t, s.UpdateStatus(context.Background(), "nope", domain.OrderStatusCancelled))
}

func TestListAndCountActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testOrder("b1", domain.SideBuy, "17.40")))
	require.NoError(t, s.Insert(ctx, testOrder("b2", domain.SideBuy, "17.41")))
	require.NoError(t, s.Insert(ctx, testOrder("s1", domain.SideSell, "17.60")))
	require.NoError(t, s.UpdateStatus(ctx, "b2", domain.OrderStatusCancelled))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	buys, err := s.CountActive(ctx, domain.SideBuy)
	require.NoError(t, err)
	require.Equal(t, 1, buys)

	sells, err := s.CountActive(ctx, domain.SideSell)
	require.NoError(t, err)
	require.Equal(t, 1, sells)

	// ListActive is a snapshot: later writes do not mutate the slice
	require.NoError(t, s.UpdateStatus(ctx, "b1", domain.OrderStatusCompleted))
	require.Len(t, active, 2)
	require.Equal(t, domain.OrderStatusActive, active[0].Status)
}

func TestTargetPriceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	o := testOrder("b1", domain.SideBuy, "17.40")
	require.NoError(t, s.Insert(ctx, o))

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.TargetPrice)
	require.True(t, got.TargetPrice.Equal(decimal.RequireFromString("17.50")))

	noTarget := testOrder("s9", domain.SideSell, "17.61")
	noTarget.TargetPrice = nil
	require.NoError(t, s.Insert(ctx, noTarget))
	got, err = s.Get(ctx, "s9")
	require.NoError(t, err)
	require.Nil(t, got.TargetPrice)
}
