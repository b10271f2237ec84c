package service

import (
	"context"
	"errors"
	"fmt"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/ledger"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"go.uber.org/zap"
)

// WalletService exposes balances and credits deposits
type WalletService struct {
	store             store.TxRunner
	events            notifier
	pointsPerCurrency int64
	logger            *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(txr store.TxRunner, publisher Publisher, business config.BusinessConfig) *WalletService {
	logger := util.GetLogger()
	rate := business.PointsPerCurrency
	if rate <= 0 {
		rate = 1
	}
	return &WalletService{
		store:             txr,
		events:            notifier{pub: publisher, logger: logger},
		pointsPerCurrency: rate,
		logger:            logger,
	}
}

// OpenWallet creates a zero-balance wallet for userID. Calling it again is a no-op.
func (s *WalletService) OpenWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	if userID <= 0 {
		return nil, apperr.Validation("invalid user id %d", userID)
	}
	var w *models.Wallet
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		w, err = repo.CreateWallet(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}
	return w, nil
}

// GetWallet retrieves a wallet by owner
func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w *models.Wallet
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		w, err = repo.GetWallet(ctx, userID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return w, nil
}

// ListTransactions returns the user's ledger rows newest first
func (s *WalletService) ListTransactions(ctx context.Context, userID int64, types []string, limit int) ([]models.PointTransaction, error) {
	var txs []models.PointTransaction
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		txs, err = repo.ListPointTransactions(ctx, models.TransactionFilter{
			UserID: userID,
			Types:  types,
			Limit:  limit,
		})
		return err
	})
	return txs, translate(err)
}

// Deposit credits points directly. A reused reference is DUPLICATE_REQUEST.
func (s *WalletService) Deposit(ctx context.Context, userID, amount int64, referenceID string) (*models.PointTransaction, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Deposit")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var tx *models.PointTransaction
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		w, err := repo.LockWallet(ctx, userID)
		if err != nil {
			return translate(err)
		}
		tx, err = ledger.Deposit(ctx, repo, w, amount, referenceID, "Manual deposit")
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		err = apperr.Duplicate("deposit reference %s already applied", referenceID)
	}
	if err != nil {
		util.DepositsTotal.WithLabelValues("manual", string(apperr.CodeOf(err))).Inc()
		return nil, err
	}

	util.DepositsTotal.WithLabelValues("manual", "applied").Inc()
	s.events.wallet(ctx, walletEvent(models.EventTypeDepositCredited, tx))
	return tx, nil
}

// DepositIfNotProcessed converts an external amount into points and credits it
// once per gateway reference. applied is false when the reference was seen before.
func (s *WalletService) DepositIfNotProcessed(ctx context.Context, userID, amountExternal int64, referenceID, source string) (applied bool, err error) {
	ctx, span := util.StartSpan(ctx, "WalletService.DepositIfNotProcessed")
	defer func() { util.EndSpan(span, err) }()

	if referenceID == "" {
		return false, apperr.Validation("reference id is required")
	}
	points := amountExternal / s.pointsPerCurrency
	if points <= 0 {
		return false, apperr.Validation("amount %d converts to no points", amountExternal)
	}

	var tx *models.PointTransaction
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		if _, err := repo.CreateWallet(ctx, userID); err != nil {
			return err
		}
		w, err := repo.LockWallet(ctx, userID)
		if err != nil {
			return err
		}

		existing, err := repo.FindPointTransactionByReference(ctx, models.TxTypeDeposit, referenceID, models.TxStatusSuccess)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		tx, err = ledger.Deposit(ctx, repo, w, points, referenceID, fmt.Sprintf("Gateway deposit of %d", amountExternal))
		return err
	})
	if errors.Is(err, store.ErrDuplicate) || apperr.IsCode(err, apperr.CodeDuplicateRequest) {
		// a concurrent delivery won the unique index
		err = nil
	}
	if err != nil {
		util.DepositsTotal.WithLabelValues(source, "error").Inc()
		return false, err
	}
	if tx == nil {
		util.DepositsTotal.WithLabelValues(source, "duplicate").Inc()
		s.logger.Info("Deposit already processed",
			zap.Int64("user_id", userID),
			zap.String("reference_id", referenceID))
		return false, nil
	}

	util.DepositsTotal.WithLabelValues(source, "applied").Inc()
	s.logger.Info("Deposit credited",
		zap.Int64("user_id", userID),
		zap.Int64("points", points),
		zap.String("reference_id", referenceID))

	s.events.wallet(ctx, walletEvent(models.EventTypeDepositCredited, tx))
	return true, nil
}

// HandleDepositConfirmed is the broker callback for DEPOSIT_CONFIRMED events
func (s *WalletService) HandleDepositConfirmed(ctx context.Context, event *models.DepositConfirmedEvent) error {
	_, err := s.DepositIfNotProcessed(ctx, event.UserID, event.AmountExternal, event.ReferenceID, "kafka")
	if apperr.IsCode(err, apperr.CodeValidation) {
		// poison message, retrying will not help
		s.logger.Warn("Dropping invalid deposit event",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return nil
	}
	return err
}
