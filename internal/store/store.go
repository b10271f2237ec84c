package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is wrapped when an insert hits a unique index
	ErrDuplicate = errors.New("duplicate")
)

// Repository is the set of queries settlement runs inside one unit of work.
// Lock* methods take a row lock held until the enclosing transaction ends.
type Repository interface {
	CreateWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	LockWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	UpdateWalletBalances(ctx context.Context, wallet *models.Wallet) error

	InsertPointTransaction(ctx context.Context, tx *models.PointTransaction) error
	GetPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error)
	LockPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error)
	UpdatePointTransactionStatus(ctx context.Context, id int64, status, remarks string) error
	FindPointTransactionByReference(ctx context.Context, txType, referenceID, status string) (*models.PointTransaction, error)
	ListPointTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.PointTransaction, error)

	GetItem(ctx context.Context, id int64) (*models.Item, error)
	LockItem(ctx context.Context, id int64) (*models.Item, error)
	UpdateItemStatus(ctx context.Context, id int64, status string) error
	UpdateItemInspectionStatus(ctx context.Context, id int64, status string) error

	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	InsertOrderStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)

	InsertInspection(ctx context.Context, req *models.InspectionRequest) error
	GetInspection(ctx context.Context, id int64) (*models.InspectionRequest, error)
	LockInspection(ctx context.Context, id int64) (*models.InspectionRequest, error)
	UpdateInspection(ctx context.Context, req *models.InspectionRequest) error
	ListInspections(ctx context.Context, status string) ([]models.InspectionRequest, error)
	InsertInspectionReport(ctx context.Context, report *models.InspectionReport) error
	GetInspectionReportByRequest(ctx context.Context, requestID int64) (*models.InspectionReport, error)
	UpdateInspectionReportDecision(ctx context.Context, reportID int64, decision string) error

	InsertDispute(ctx context.Context, dispute *models.Dispute) error
	GetDispute(ctx context.Context, id int64) (*models.Dispute, error)
	LockDispute(ctx context.Context, id int64) (*models.Dispute, error)
	UpdateDispute(ctx context.Context, dispute *models.Dispute) error
	ListDisputes(ctx context.Context, status string) ([]models.Dispute, error)

	InsertHistory(ctx context.Context, entry *models.EntityHistory) error
	ListHistory(ctx context.Context, entityType string, entityID int64) ([]models.EntityHistory, error)
}

// TxRunner runs fn against a Repository. WithTx commits when fn returns nil and
// rolls back every write otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repo Repository) error) error
	View(ctx context.Context, fn func(repo Repository) error) error
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a READ COMMITTED transaction
func (s *Store) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn on the pool without a transaction. Lock* calls are meaningless here.
func (s *Store) View(ctx context.Context, fn func(repo Repository) error) error {
	return fn(&queries{ext: s.db})
}

// queries implements Repository over either the pool or an open transaction
type queries struct {
	ext sqlx.ExtContext
}

func (q *queries) get(ctx context.Context, dest interface{}, what string, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q.ext, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (q *queries) exec(ctx context.Context, what string, query string, args ...interface{}) error {
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func wrapWriteErr(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
