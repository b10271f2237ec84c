package service

import (
	"context"
	"fmt"
	"strings"

	"escrow-service/internal/apperr"
	"escrow-service/internal/ledger"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"go.uber.org/zap"
)

// WithdrawalService freezes points for cash-out and lets admins settle or reverse them
type WithdrawalService struct {
	store  store.TxRunner
	events notifier
	logger *zap.Logger
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(txr store.TxRunner, publisher Publisher) *WithdrawalService {
	logger := util.GetLogger()
	return &WithdrawalService{
		store:  txr,
		events: notifier{pub: publisher, logger: logger},
		logger: logger,
	}
}

// BankDetails identifies the payout account
type BankDetails struct {
	BankName          string `json:"bank_name" validate:"required,max=100"`
	BankAccountName   string `json:"bank_account_name" validate:"required,max=100"`
	BankAccountNumber string `json:"bank_account_number" validate:"required,numeric,min=6,max=20"`
}

func (b BankDetails) reference() string {
	return fmt.Sprintf("Withdrawal: %s | %s | %s", b.BankName, b.BankAccountName, b.BankAccountNumber)
}

type withdrawInput struct {
	Amount int64 `json:"amount" validate:"gt=0"`
	Bank   BankDetails
}

// RequestWithdraw freezes amount with a PENDING withdrawal row
func (s *WithdrawalService) RequestWithdraw(ctx context.Context, userID, amount int64, bank BankDetails) (*models.PointTransaction, error) {
	ctx, span := util.StartSpan(ctx, "WithdrawalService.RequestWithdraw")
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = validateStruct(withdrawInput{Amount: amount, Bank: bank}); err != nil {
		return nil, err
	}

	var tx *models.PointTransaction
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		w, err := repo.LockWallet(ctx, userID)
		if err != nil {
			return translate(err)
		}
		tx, err = ledger.Freeze(ctx, repo, w, ledger.Entry{
			Amount:      amount,
			Type:        models.TxTypeWithdraw,
			Status:      models.TxStatusPending,
			ReferenceID: bank.reference(),
			Remarks:     "Withdrawal requested",
		})
		if err != nil {
			return err
		}
		return record(ctx, repo, models.EntityWithdrawal, tx.ID, "requested", audit{"amount": amount, "bank": bank.BankName})
	})
	if err != nil {
		return nil, err
	}

	util.WithdrawalsTotal.WithLabelValues(models.TxStatusPending).Inc()
	s.logger.Info("Withdrawal requested",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount))

	s.events.wallet(ctx, walletEvent(models.EventTypeWithdrawalRequested, tx))
	return tx, nil
}

// ApproveWithdrawal debits the frozen points once the payout has been sent
func (s *WithdrawalService) ApproveWithdrawal(ctx context.Context, txID int64) (*models.PointTransaction, error) {
	return s.settle(ctx, txID, "WithdrawalService.ApproveWithdrawal", func(ctx context.Context, repo store.Repository, w *models.Wallet, tx *models.PointTransaction) error {
		if err := ledger.SettleWithdrawal(ctx, repo, w, tx); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityWithdrawal, tx.ID, "approved", audit{"amount": tx.Amount})
	}, models.EventTypeWithdrawalApproved)
}

// RejectWithdrawal returns the frozen points to available
func (s *WithdrawalService) RejectWithdrawal(ctx context.Context, txID int64, reason string) (*models.PointTransaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	return s.settle(ctx, txID, "WithdrawalService.RejectWithdrawal", func(ctx context.Context, repo store.Repository, w *models.Wallet, tx *models.PointTransaction) error {
		if err := ledger.ReverseWithdrawal(ctx, repo, w, tx, reason); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityWithdrawal, tx.ID, "rejected", audit{"amount": tx.Amount, "reason": reason})
	}, models.EventTypeWithdrawalRejected)
}

func (s *WithdrawalService) settle(
	ctx context.Context,
	txID int64,
	spanName string,
	apply func(ctx context.Context, repo store.Repository, w *models.Wallet, tx *models.PointTransaction) error,
	eventType string,
) (*models.PointTransaction, error) {
	ctx, span := util.StartSpan(ctx, spanName)
	var err error
	defer func() { util.EndSpan(span, err) }()

	var tx *models.PointTransaction
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		tx, err = repo.LockPointTransaction(ctx, txID)
		if err != nil {
			return translate(err)
		}
		if tx.Type != models.TxTypeWithdraw || tx.Status != models.TxStatusPending {
			return apperr.InvalidState("transaction %d is %s/%s, not a pending withdrawal", tx.ID, tx.Type, tx.Status)
		}
		w, err := repo.LockWallet(ctx, tx.UserID)
		if err != nil {
			return translate(err)
		}
		return apply(ctx, repo, w, tx)
	})
	if err != nil {
		return nil, err
	}

	util.WithdrawalsTotal.WithLabelValues(tx.Status).Inc()
	s.logger.Info("Withdrawal settled",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("status", tx.Status))

	s.events.wallet(ctx, walletEvent(eventType, tx))
	return tx, nil
}

// ListWithdrawals returns withdrawal rows newest first, filtered by status when given
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, statuses []string) ([]models.PointTransaction, error) {
	var txs []models.PointTransaction
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		txs, err = repo.ListPointTransactions(ctx, models.TransactionFilter{
			Types:    []string{models.TxTypeWithdraw},
			Statuses: statuses,
		})
		return err
	})
	return txs, translate(err)
}

func walletEvent(eventType string, tx *models.PointTransaction) *models.WalletEvent {
	return &models.WalletEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		ReferenceID:   tx.ReferenceID,
		Status:        tx.Status,
	}
}
