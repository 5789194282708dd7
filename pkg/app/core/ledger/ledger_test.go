package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/storage"
)

func setup(t *testing.T) (*storage.PebbleStore, *Ledger) {
	s, err := storage.Open(storage.Options{Path: "ledger", InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, New(nil)
}

func TestReserve(t *testing.T) {
	s, l := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx core.Tx) error {
		_, err := l.Deposit(tx, 1, decimal.RequireFromString("5.5"))
		return err
	}))

	require.NoError(t, s.Update(ctx, func(tx core.Tx) error {
		acc, err := l.Reserve(tx, 1, decimal.RequireFromString("5.5"))
		require.NoError(t, err)
		require.True(t, acc.GoldBalance.IsZero())
		return nil
	}))

	err := s.Update(ctx, func(tx core.Tx) error {
		_, err := l.Reserve(tx, 1, decimal.RequireFromString("0.001"))
		return err
	})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestReserveUnknownOwner(t *testing.T) {
	s, l := setup(t)
	err := s.Update(context.Background(), func(tx core.Tx) error {
		_, err := l.Reserve(tx, 77, decimal.NewFromInt(1))
		return err
	})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestDepositValidation(t *testing.T) {
	s, l := setup(t)
	for _, q := range []string{"0", "-1", "0.0001"} {
		err := s.Update(context.Background(), func(tx core.Tx) error {
			_, err := l.Deposit(tx, 1, decimal.RequireFromString(q))
			return err
		})
		require.ErrorIs(t, err, core.ErrInvalidOrder, q)
	}

	require.NoError(t, s.View(context.Background(), func(tx core.Tx) error {
		bal, err := l.Balance(tx, 1)
		require.NoError(t, err)
		require.True(t, bal.IsZero())
		return nil
	}))
}
