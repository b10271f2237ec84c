package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/ledger"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// completedKeyTTL is how long a finished idempotency key is remembered in Redis
const completedKeyTTL = 24 * time.Hour

// OrderService handles escrowed purchase orders
type OrderService struct {
	store          store.TxRunner
	guard          IdempotencyGuard
	events         notifier
	commissionRate decimal.Decimal
	lockTTL        time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service. guard may be nil, in which case
// the database unique index alone deduplicates keys.
func NewOrderService(
	txr store.TxRunner,
	guard IdempotencyGuard,
	publisher Publisher,
	business config.BusinessConfig,
) *OrderService {
	logger := util.GetLogger()
	return &OrderService{
		store:          txr,
		guard:          guard,
		events:         notifier{pub: publisher, logger: logger},
		commissionRate: business.CommissionRate,
		lockTTL:        business.IdempotencyLockTTL,
		logger:         logger,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ItemID         int64  `json:"item_id" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateOrder escrows the item price from the buyer and reserves the item
func (s *OrderService) CreateOrder(ctx context.Context, buyerID, itemID int64, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("create_order")()

	if idempotencyKey == "" {
		err = apperr.Validation("idempotency key is required")
		return nil, err
	}

	if err = s.rejectKnownKey(ctx, idempotencyKey); err != nil {
		util.OrdersFailedTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		return nil, err
	}

	if s.guard != nil {
		lockKey := "order:" + idempotencyKey
		token, ok, lockErr := s.guard.AcquireLock(ctx, lockKey, s.lockTTL)
		switch {
		case lockErr != nil:
			s.logger.Warn("Idempotency lock unavailable, relying on database",
				zap.String("idempotency_key", idempotencyKey), zap.Error(lockErr))
		case !ok:
			util.OrdersFailedTotal.WithLabelValues("in_flight").Inc()
			err = apperr.Duplicate("request with idempotency key %s is already in progress", idempotencyKey)
			return nil, err
		default:
			defer func() {
				if relErr := s.guard.ReleaseLock(context.Background(), lockKey, token); relErr != nil {
					s.logger.Warn("Failed to release idempotency lock", zap.Error(relErr))
				}
			}()
		}
	}

	var order *models.Order
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		checkKey := func() error {
			existing, err := repo.GetOrderByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				return duplicateOrder(existing)
			}
			return nil
		}
		if err := checkKey(); err != nil {
			return err
		}

		item, err := repo.LockItem(ctx, itemID)
		if err != nil {
			return translate(err)
		}
		// a request with the same key may have committed while we waited on the item
		if err := checkKey(); err != nil {
			return err
		}
		if !item.IsPurchasable() {
			return apperr.ListingNotAvailable("item %d is %s", item.ID, item.Status)
		}
		if item.OwnerID == buyerID {
			return apperr.Forbidden("cannot buy your own item")
		}

		buyer, err := repo.LockWallet(ctx, buyerID)
		if err != nil {
			return translate(err)
		}
		if buyer.AvailablePoints < item.PricePoints {
			return apperr.InsufficientBalance("available %d, required %d", buyer.AvailablePoints, item.PricePoints)
		}

		order = &models.Order{
			BuyerID:        buyerID,
			SellerID:       item.OwnerID,
			ItemID:         item.ID,
			AmountPoints:   item.PricePoints,
			Status:         models.OrderStatusEscrowed,
			IdempotencyKey: idempotencyKey,
		}
		if err := repo.InsertOrder(ctx, order); err != nil {
			return err
		}

		if _, err := ledger.Freeze(ctx, repo, buyer, ledger.Entry{
			Amount:      order.AmountPoints,
			ReferenceID: orderRef(order.ID),
			Remarks:     fmt.Sprintf("Escrow hold for item %d", item.ID),
		}); err != nil {
			return err
		}

		if err := repo.UpdateItemStatus(ctx, item.ID, models.ItemStatusReserved); err != nil {
			return fmt.Errorf("failed to reserve item: %w", err)
		}

		return repo.InsertOrderStatusHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			NewStatus: models.OrderStatusEscrowed,
			Note:      "Buyer funds escrowed",
		})
	})
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race on the unique key to a concurrent request
		err = s.rejectKnownKey(ctx, idempotencyKey)
		if err == nil {
			err = apperr.Duplicate("idempotency key %s already used", idempotencyKey)
		}
		util.OrdersFailedTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		return nil, err
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		return nil, err
	}

	if s.guard != nil {
		if cacheErr := s.guard.SetIdempotencyKey(ctx, idempotencyKey, order.ID, completedKeyTTL); cacheErr != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(cacheErr))
		}
	}

	util.OrdersEscrowedTotal.Inc()
	s.logger.Info("Order escrowed",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("item_id", itemID),
		zap.Int64("amount", order.AmountPoints))

	s.events.order(ctx, orderEvent(models.EventTypeOrderEscrowed, order))
	return order, nil
}

// rejectKnownKey returns DUPLICATE_REQUEST carrying the existing order when the
// key was already used. The Redis cache is consulted first, the database second.
func (s *OrderService) rejectKnownKey(ctx context.Context, key string) error {
	if s.guard != nil {
		cached, err := s.guard.GetIdempotencyKey(ctx, key)
		if err != nil {
			s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
		} else if id, parseErr := strconv.ParseInt(cached, 10, 64); cached != "" && parseErr == nil {
			order, err := s.GetOrder(ctx, id)
			if err == nil {
				return duplicateOrder(order)
			}
		}
	}

	var existing *models.Order
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		existing, err = repo.GetOrderByIdempotencyKey(ctx, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", existing.ID))
		return duplicateOrder(existing)
	}
	return nil
}

func duplicateOrder(existing *models.Order) error {
	return apperr.Duplicate("idempotency key %s already used by order %d", existing.IdempotencyKey, existing.ID).
		WithDetails(existing)
}

// ApproveOrder releases the escrow to the seller minus commission
func (s *OrderService) ApproveOrder(ctx context.Context, orderID, buyerID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ApproveOrder")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("approve_order")()

	var (
		order      *models.Order
		commission int64
	)
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		if order.BuyerID != buyerID {
			return apperr.Forbidden("only the buyer can approve order %d", orderID)
		}
		if order.Status != models.OrderStatusEscrowed {
			return apperr.InvalidState("order %d is %s, expected %s", orderID, order.Status, models.OrderStatusEscrowed)
		}

		if _, err := repo.LockItem(ctx, order.ItemID); err != nil {
			return translate(err)
		}
		wallets, err := ledger.LockWallets(ctx, repo, order.BuyerID, order.SellerID)
		if err != nil {
			return translate(err)
		}

		commission, err = releaseEscrow(ctx, repo, order, wallets, s.commissionRate)
		if err != nil {
			return err
		}
		if err := moveOrder(ctx, repo, order, models.OrderStatusCompleted, "Buyer approved"); err != nil {
			return err
		}
		return repo.UpdateItemStatus(ctx, order.ItemID, models.ItemStatusSold)
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Order completed",
		zap.Int64("order_id", order.ID),
		zap.Int64("seller_id", order.SellerID),
		zap.Int64("commission", commission))

	event := orderEvent(models.EventTypeOrderCompleted, order)
	event.Commission = commission
	s.events.order(ctx, event)
	return order, nil
}

// CancelOrder refunds an escrowed order to the buyer and relists the item
func (s *OrderService) CancelOrder(ctx context.Context, orderID, buyerID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("cancel_order")()

	var order *models.Order
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		if order.BuyerID != buyerID {
			return apperr.Forbidden("only the buyer can cancel order %d", orderID)
		}
		if order.Status != models.OrderStatusEscrowed && order.Status != models.OrderStatusPendingPayment {
			return apperr.InvalidState("order %d is %s and cannot be cancelled", orderID, order.Status)
		}

		item, err := repo.LockItem(ctx, order.ItemID)
		if err != nil {
			return translate(err)
		}

		if order.Status == models.OrderStatusEscrowed {
			wallets, err := ledger.LockWallets(ctx, repo, order.BuyerID)
			if err != nil {
				return translate(err)
			}
			if err := refundEscrow(ctx, repo, order, wallets[order.BuyerID], "Order cancelled by buyer"); err != nil {
				return err
			}
		}

		note := "Cancelled by buyer"
		if reason != "" {
			note += ": " + reason
		}
		if err := moveOrder(ctx, repo, order, models.OrderStatusCancelled, note); err != nil {
			return err
		}

		if item.Status == models.ItemStatusReserved {
			return repo.UpdateItemStatus(ctx, item.ID, models.ItemStatusActive)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.Int64("order_id", order.ID), zap.String("reason", reason))

	event := orderEvent(models.EventTypeOrderCancelled, order)
	event.Reason = reason
	s.events.order(ctx, event)
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order *models.Order
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// ListOrderHistory returns the order's transitions oldest first
func (s *OrderService) ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := s.store.View(ctx, func(repo store.Repository) error {
		if _, err := repo.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		history, err = repo.ListOrderStatusHistory(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return history, nil
}
