package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"escrow-service/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp(context.Background()))
	return s
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))

	err := wrapWriteErr(&pq.Error{Code: "23505"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestWalletRoundTrip(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	userID := int64(9001)

	err := s.WithTx(ctx, func(repo Repository) error {
		w, err := repo.CreateWallet(ctx, userID)
		if err != nil {
			return err
		}
		w.AvailablePoints += 500
		if err := repo.UpdateWalletBalances(ctx, w); err != nil {
			return err
		}
		return repo.InsertPointTransaction(ctx, &models.PointTransaction{
			UserID: userID, Amount: 500, Type: models.TxTypeDeposit,
			Status: models.TxStatusSuccess, ReferenceID: "it-wallet-ref",
		})
	})
	require.NoError(t, err)

	err = s.View(ctx, func(repo Repository) error {
		w, err := repo.GetWallet(ctx, userID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, w.AvailablePoints, int64(500))

		found, err := repo.FindPointTransactionByReference(ctx, models.TxTypeDeposit, "it-wallet-ref", models.TxStatusSuccess)
		require.NoError(t, err)
		assert.NotNil(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestDuplicateDepositReference(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	insert := func() error {
		return s.WithTx(ctx, func(repo Repository) error {
			if _, err := repo.CreateWallet(ctx, 9002); err != nil {
				return err
			}
			return repo.InsertPointTransaction(ctx, &models.PointTransaction{
				UserID: 9002, Amount: 10, Type: models.TxTypeDeposit,
				Status: models.TxStatusSuccess, ReferenceID: "it-dup-ref",
			})
		})
	}

	_ = insert()
	err := insert()
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRollbackOnError(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.CreateWallet(ctx, 9003); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(repo Repository) error {
		_, err := repo.GetWallet(ctx, 9003)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZeroAmountRejected(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.CreateWallet(ctx, 9004); err != nil {
			return err
		}
		return repo.InsertPointTransaction(ctx, &models.PointTransaction{
			UserID: 9004, Amount: 0, Type: models.TxTypeDeposit, Status: models.TxStatusSuccess,
		})
	})
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr), "got %v", err)
	assert.Equal(t, pq.ErrorCode("23514"), pqErr.Code)
}

func TestHistoryRoundTrip(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	actor := int64(42)

	err := s.WithTx(ctx, func(repo Repository) error {
		if err := repo.InsertHistory(ctx, &models.EntityHistory{
			EntityType: models.EntityDispute, EntityID: 9005, Action: "opened",
			PerformedBy: &actor, Metadata: `{"order_id":1}`,
		}); err != nil {
			return err
		}
		return repo.InsertHistory(ctx, &models.EntityHistory{
			EntityType: models.EntityDispute, EntityID: 9005, Action: "investigating",
		})
	})
	require.NoError(t, err)

	err = s.View(ctx, func(repo Repository) error {
		history, err := repo.ListHistory(ctx, models.EntityDispute, 9005)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(history), 2)
		last := history[len(history)-2:]
		assert.Equal(t, "opened", last[0].Action)
		assert.JSONEq(t, `{"order_id":1}`, last[0].Metadata)
		assert.Nil(t, last[1].PerformedBy)
		assert.JSONEq(t, `{}`, last[1].Metadata)
		return nil
	})
	require.NoError(t, err)
}
