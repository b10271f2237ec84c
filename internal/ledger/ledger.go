// Package ledger applies balance mutations to wallets that the caller has
// already locked inside its transaction. Every mutation appends exactly one
// point transaction row.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
)

// Entry describes the ledger row written alongside a balance change.
// Empty Type and Status fall back to the operation's default.
type Entry struct {
	Amount      int64
	Type        string
	Status      string
	ReferenceID string
	Remarks     string
}

func (e Entry) row(userID int64, defType, defStatus string) *models.PointTransaction {
	tx := &models.PointTransaction{
		UserID:      userID,
		Amount:      e.Amount,
		Type:        e.Type,
		Status:      e.Status,
		ReferenceID: e.ReferenceID,
		Remarks:     e.Remarks,
	}
	if tx.Type == "" {
		tx.Type = defType
	}
	if tx.Status == "" {
		tx.Status = defStatus
	}
	return tx
}

// LockWallets locks each distinct wallet in ascending user id order
func LockWallets(ctx context.Context, repo store.Repository, userIDs ...int64) (map[int64]*models.Wallet, error) {
	ids := make([]int64, 0, len(userIDs))
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	wallets := make(map[int64]*models.Wallet, len(ids))
	for _, id := range ids {
		w, err := repo.LockWallet(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to lock wallet %d: %w", id, err)
		}
		wallets[id] = w
	}
	return wallets, nil
}

// Deposit credits available points. A reference that already has a successful
// deposit is rejected with DUPLICATE_REQUEST.
func Deposit(ctx context.Context, repo store.Repository, w *models.Wallet, amount int64, referenceID, remarks string) (*models.PointTransaction, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if referenceID != "" {
		existing, err := repo.FindPointTransactionByReference(ctx, models.TxTypeDeposit, referenceID, models.TxStatusSuccess)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Duplicate("deposit reference %s already applied", referenceID).
				WithDetails(map[string]int64{"transaction_id": existing.ID})
		}
	}

	w.AvailablePoints += amount
	entry := Entry{Amount: amount, ReferenceID: referenceID, Remarks: remarks}
	return apply(ctx, repo, w, entry.row(w.UserID, models.TxTypeDeposit, models.TxStatusSuccess))
}

// Freeze moves points from available to frozen
func Freeze(ctx context.Context, repo store.Repository, w *models.Wallet, entry Entry) (*models.PointTransaction, error) {
	if err := requirePositive(entry.Amount); err != nil {
		return nil, err
	}
	if w.AvailablePoints < entry.Amount {
		return nil, apperr.InsufficientBalance("available %d, required %d", w.AvailablePoints, entry.Amount)
	}

	w.AvailablePoints -= entry.Amount
	w.FrozenPoints += entry.Amount
	return apply(ctx, repo, w, entry.row(w.UserID, models.TxTypeEscrowHold, models.TxStatusSuccess))
}

// Unfreeze removes frozen points from the wallet entirely
func Unfreeze(ctx context.Context, repo store.Repository, w *models.Wallet, entry Entry) (*models.PointTransaction, error) {
	if err := takeFrozen(w, entry.Amount); err != nil {
		return nil, err
	}
	return apply(ctx, repo, w, entry.row(w.UserID, models.TxTypeSpend, models.TxStatusSuccess))
}

// RefundToAvailable returns frozen points to available
func RefundToAvailable(ctx context.Context, repo store.Repository, w *models.Wallet, entry Entry) (*models.PointTransaction, error) {
	if err := takeFrozen(w, entry.Amount); err != nil {
		return nil, err
	}
	w.AvailablePoints += entry.Amount
	return apply(ctx, repo, w, entry.row(w.UserID, models.TxTypeEscrowRelease, models.TxStatusSuccess))
}

// CreditAvailable adds earned points to available
func CreditAvailable(ctx context.Context, repo store.Repository, w *models.Wallet, entry Entry) (*models.PointTransaction, error) {
	if err := requirePositive(entry.Amount); err != nil {
		return nil, err
	}
	w.AvailablePoints += entry.Amount
	return apply(ctx, repo, w, entry.row(w.UserID, models.TxTypeEarn, models.TxStatusSuccess))
}

// SettleWithdrawal debits the frozen amount of a pending withdrawal and marks it SUCCESS
func SettleWithdrawal(ctx context.Context, repo store.Repository, w *models.Wallet, pending *models.PointTransaction) error {
	if err := requirePendingWithdrawal(w, pending); err != nil {
		return err
	}
	if err := takeFrozen(w, pending.Amount); err != nil {
		return err
	}
	if err := repo.UpdateWalletBalances(ctx, w); err != nil {
		return fmt.Errorf("failed to update wallet %d: %w", w.UserID, err)
	}
	if err := repo.UpdatePointTransactionStatus(ctx, pending.ID, models.TxStatusSuccess, ""); err != nil {
		return fmt.Errorf("failed to settle transaction %d: %w", pending.ID, err)
	}
	pending.Status = models.TxStatusSuccess
	return nil
}

// ReverseWithdrawal returns a pending withdrawal to available and marks it FAILED
func ReverseWithdrawal(ctx context.Context, repo store.Repository, w *models.Wallet, pending *models.PointTransaction, reason string) error {
	if err := requirePendingWithdrawal(w, pending); err != nil {
		return err
	}
	if err := takeFrozen(w, pending.Amount); err != nil {
		return err
	}
	w.AvailablePoints += pending.Amount
	if err := repo.UpdateWalletBalances(ctx, w); err != nil {
		return fmt.Errorf("failed to update wallet %d: %w", w.UserID, err)
	}
	remarks := "Rejected: " + reason
	if err := repo.UpdatePointTransactionStatus(ctx, pending.ID, models.TxStatusFailed, remarks); err != nil {
		return fmt.Errorf("failed to reverse transaction %d: %w", pending.ID, err)
	}
	pending.Status = models.TxStatusFailed
	pending.Remarks = remarks
	return nil
}

// RecordCommission documents points taken out of circulation. No balance moves
// and a zero amount writes nothing.
func RecordCommission(ctx context.Context, repo store.Repository, payerID, amount int64, referenceID, remarks string) (*models.PointTransaction, error) {
	if amount == 0 {
		return nil, nil
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	tx := Entry{Amount: amount, ReferenceID: referenceID, Remarks: remarks}.
		row(payerID, models.TxTypeCommission, models.TxStatusSuccess)
	if err := repo.InsertPointTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record commission: %w", err)
	}
	return tx, nil
}

func apply(ctx context.Context, repo store.Repository, w *models.Wallet, tx *models.PointTransaction) (*models.PointTransaction, error) {
	if err := repo.UpdateWalletBalances(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to update wallet %d: %w", w.UserID, err)
	}
	if err := repo.InsertPointTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to append %s transaction: %w", tx.Type, err)
	}
	recordMovement(tx)
	return tx, nil
}

func takeFrozen(w *models.Wallet, amount int64) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if w.FrozenPoints < amount {
		return apperr.InvalidState("wallet %d frozen %d, cannot release %d", w.UserID, w.FrozenPoints, amount)
	}
	w.FrozenPoints -= amount
	return nil
}

func requirePositive(amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be positive, got %d", amount)
	}
	return nil
}

func requirePendingWithdrawal(w *models.Wallet, pending *models.PointTransaction) error {
	if pending.Type != models.TxTypeWithdraw || pending.Status != models.TxStatusPending {
		return apperr.InvalidState("transaction %d is %s/%s, not a pending withdrawal", pending.ID, pending.Type, pending.Status)
	}
	if pending.UserID != w.UserID {
		return apperr.InvalidState("transaction %d does not belong to wallet %d", pending.ID, w.UserID)
	}
	return nil
}
