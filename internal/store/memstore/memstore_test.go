package memstore

import (
	"context"
	"errors"
	"testing"

	"escrow-service/internal/models"
	"escrow-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTxRollsBack(t *testing.T) {
	s := New()
	s.PutWallet(models.Wallet{UserID: 1, AvailablePoints: 100})
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo store.Repository) error {
		w, err := repo.LockWallet(ctx, 1)
		require.NoError(t, err)
		w.AvailablePoints = 0
		require.NoError(t, repo.UpdateWalletBalances(ctx, w))
		return boom
	})
	require.ErrorIs(t, err, boom)

	wallets := s.Wallets()
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(100), wallets[0].AvailablePoints)
}

func TestWithTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(repo store.Repository) error {
		_, err := repo.CreateWallet(ctx, 7)
		if err != nil {
			return err
		}
		return repo.InsertPointTransaction(ctx, &models.PointTransaction{
			UserID: 7, Amount: 5, Type: models.TxTypeDeposit, Status: models.TxStatusSuccess, ReferenceID: "r1",
		})
	})
	require.NoError(t, err)
	assert.Len(t, s.Transactions(), 1)
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	item := s.PutItem(models.Item{OwnerID: 2, PricePoints: 10, Status: models.ItemStatusActive})
	ctx := context.Background()

	err := s.WithTx(ctx, func(repo store.Repository) error {
		_, err := repo.CreateWallet(ctx, 1)
		require.NoError(t, err)

		deposit := func() error {
			return repo.InsertPointTransaction(ctx, &models.PointTransaction{
				UserID: 1, Amount: 5, Type: models.TxTypeDeposit, Status: models.TxStatusSuccess, ReferenceID: "dup",
			})
		}
		require.NoError(t, deposit())
		assert.ErrorIs(t, deposit(), store.ErrDuplicate)

		order := func() error {
			return repo.InsertOrder(ctx, &models.Order{
				BuyerID: 1, SellerID: 2, ItemID: item.ID, AmountPoints: 10,
				Status: models.OrderStatusEscrowed, IdempotencyKey: "k",
			})
		}
		require.NoError(t, order())
		assert.ErrorIs(t, order(), store.ErrDuplicate)
		return nil
	})
	require.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, func(repo store.Repository) error {
		_, err := repo.GetOrder(ctx, 42)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPointTransactionsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(repo store.Repository) error {
		for _, uid := range []int64{1, 2} {
			if _, err := repo.CreateWallet(ctx, uid); err != nil {
				return err
			}
		}
		rows := []models.PointTransaction{
			{UserID: 1, Amount: 1, Type: models.TxTypeDeposit, Status: models.TxStatusSuccess},
			{UserID: 1, Amount: 2, Type: models.TxTypeWithdraw, Status: models.TxStatusPending},
			{UserID: 2, Amount: 3, Type: models.TxTypeWithdraw, Status: models.TxStatusPending},
		}
		for i := range rows {
			if err := repo.InsertPointTransaction(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(repo store.Repository) error {
		pending, err := repo.ListPointTransactions(ctx, models.TransactionFilter{
			Types: []string{models.TxTypeWithdraw}, Statuses: []string{models.TxStatusPending},
		})
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		assert.Equal(t, int64(3), pending[0].Amount)

		mine, err := repo.ListPointTransactions(ctx, models.TransactionFilter{UserID: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, int64(2), mine[0].Amount)
		return nil
	}))
}

func TestRejectsNonPositiveAmount(t *testing.T) {
	s := New()
	s.PutWallet(models.Wallet{UserID: 1})
	ctx := context.Background()

	err := s.WithTx(ctx, func(repo store.Repository) error {
		return repo.InsertPointTransaction(ctx, &models.PointTransaction{
			UserID: 1, Amount: 0, Type: models.TxTypeDeposit, Status: models.TxStatusSuccess,
		})
	})
	assert.Error(t, err)
	assert.Empty(t, s.Transactions())
}

func TestHistoryByEntity(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(repo store.Repository) error {
		for _, e := range []models.EntityHistory{
			{EntityType: models.EntityInspection, EntityID: 1, Action: "requested"},
			{EntityType: models.EntityItem, EntityID: 1, Action: "verified"},
			{EntityType: models.EntityInspection, EntityID: 1, Action: "assigned"},
		} {
			e := e
			if err := repo.InsertHistory(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, func(repo store.Repository) error {
		history, err := repo.ListHistory(ctx, models.EntityInspection, 1)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "requested", history[0].Action)
		assert.Equal(t, "assigned", history[1].Action)
		assert.Equal(t, "{}", history[0].Metadata)
		return nil
	})
	require.NoError(t, err)
}
