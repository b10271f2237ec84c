package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const defaultTransactionLimit = 100

// CreateWallet opens a zero-balance wallet, returning the existing one if present
func (q *queries) CreateWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	query := `
		INSERT INTO wallets (user_id, available_points, frozen_points)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := q.ext.ExecContext(ctx, query, userID); err != nil {
		return nil, err
	}
	return q.GetWallet(ctx, userID)
}

// GetWallet retrieves a wallet by owner
func (q *queries) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := q.get(ctx, &wallet, fmt.Sprintf("wallet %d", userID),
		"SELECT * FROM wallets WHERE user_id = $1", userID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockWallet retrieves a wallet and holds its row lock until the transaction ends
func (q *queries) LockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := q.get(ctx, &wallet, fmt.Sprintf("wallet %d", userID),
		"SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE", userID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// UpdateWalletBalances writes both balances and bumps the version
func (q *queries) UpdateWalletBalances(ctx context.Context, wallet *models.Wallet) error {
	query := `
		UPDATE wallets
		SET available_points = $1, frozen_points = $2, version = version + 1, updated_at = NOW()
		WHERE user_id = $3
		RETURNING version, updated_at`

	err := q.get(ctx, wallet, fmt.Sprintf("wallet %d", wallet.UserID), query,
		wallet.AvailablePoints, wallet.FrozenPoints, wallet.UserID)
	return wrapWriteErr(err)
}

// InsertPointTransaction appends a ledger row
func (q *queries) InsertPointTransaction(ctx context.Context, tx *models.PointTransaction) error {
	query := `
		INSERT INTO point_transactions (user_id, amount, type, status, reference_id, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.ext, tx, query,
		tx.UserID, tx.Amount, tx.Type, tx.Status, tx.ReferenceID, tx.Remarks)
	return wrapWriteErr(err)
}

// GetPointTransaction retrieves a ledger row by ID
func (q *queries) GetPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error) {
	var tx models.PointTransaction
	if err := q.get(ctx, &tx, fmt.Sprintf("point transaction %d", id),
		"SELECT * FROM point_transactions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &tx, nil
}

// LockPointTransaction retrieves a ledger row FOR UPDATE
func (q *queries) LockPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error) {
	var tx models.PointTransaction
	if err := q.get(ctx, &tx, fmt.Sprintf("point transaction %d", id),
		"SELECT * FROM point_transactions WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdatePointTransactionStatus settles a PENDING row. Remarks are replaced only when non-empty.
func (q *queries) UpdatePointTransactionStatus(ctx context.Context, id int64, status, remarks string) error {
	return q.exec(ctx, fmt.Sprintf("point transaction %d", id), `
		UPDATE point_transactions
		SET status = $1, remarks = CASE WHEN $2::text = '' THEN remarks ELSE $2::text END
		WHERE id = $3`,
		status, remarks, id)
}

// FindPointTransactionByReference returns nil when no row matches
func (q *queries) FindPointTransactionByReference(ctx context.Context, txType, referenceID, status string) (*models.PointTransaction, error) {
	var tx models.PointTransaction
	err := q.get(ctx, &tx, "point transaction by reference", `
		SELECT * FROM point_transactions
		WHERE type = $1 AND reference_id = $2 AND status = $3
		ORDER BY id LIMIT 1`,
		txType, referenceID, status)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListPointTransactions returns ledger rows newest first
func (q *queries) ListPointTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.PointTransaction, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Types) > 0 {
		conds = append(conds, "type IN (?)")
		args = append(args, filter.Types)
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status IN (?)")
		args = append(args, filter.Statuses)
	}

	query := "SELECT * FROM point_transactions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var txs []models.PointTransaction
	err = sqlx.SelectContext(ctx, q.ext, &txs, q.ext.Rebind(query), args...)
	return txs, err
}
