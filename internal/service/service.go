package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"go.uber.org/zap"
)

// IdempotencyGuard claims in-flight request keys and remembers finished ones.
// *redisclient.Client satisfies it.
type IdempotencyGuard interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
}

// Publisher emits settlement events after commit. *broker.EventPublisher satisfies it.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishDisputeEvent(ctx context.Context, event *models.DisputeEvent) error
	PublishInspectionEvent(ctx context.Context, event *models.InspectionEvent) error
	PublishWalletEvent(ctx context.Context, event *models.WalletEvent) error
}

// notifier publishes best effort. Settlement has already committed, so a
// broker failure is logged and never surfaces to the caller.
type notifier struct {
	pub    Publisher
	logger *zap.Logger
}

func (n notifier) order(ctx context.Context, e *models.OrderEvent) {
	if n.pub == nil {
		return
	}
	if err := n.pub.PublishOrderEvent(ctx, e); err != nil {
		n.logger.Error("Failed to publish order event",
			zap.String("type", e.EventType), zap.Int64("order_id", e.OrderID), zap.Error(err))
	}
}

func (n notifier) dispute(ctx context.Context, e *models.DisputeEvent) {
	if n.pub == nil {
		return
	}
	if err := n.pub.PublishDisputeEvent(ctx, e); err != nil {
		n.logger.Error("Failed to publish dispute event",
			zap.Int64("dispute_id", e.DisputeID), zap.Error(err))
	}
}

func (n notifier) inspection(ctx context.Context, e *models.InspectionEvent) {
	if n.pub == nil {
		return
	}
	if err := n.pub.PublishInspectionEvent(ctx, e); err != nil {
		n.logger.Error("Failed to publish inspection event",
			zap.String("type", e.EventType), zap.Int64("inspection_id", e.InspectionID), zap.Error(err))
	}
}

func (n notifier) wallet(ctx context.Context, e *models.WalletEvent) {
	if n.pub == nil {
		return
	}
	if err := n.pub.PublishWalletEvent(ctx, e); err != nil {
		n.logger.Error("Failed to publish wallet event",
			zap.String("type", e.EventType), zap.Int64("user_id", e.UserID), zap.Error(err))
	}
}

// translate maps store and model errors onto typed application errors.
// Anything unrecognized is returned unchanged and surfaces as INTERNAL.
func translate(err error) error {
	if err == nil || apperr.As(err) != nil {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "resource not found")
	}
	var te *models.TransitionError
	if errors.As(err, &te) {
		return apperr.Wrap(apperr.CodeInvalidState, err, te.Error())
	}
	return err
}

// observe records settlement latency for op. Use as defer observe("x")().
func observe(op string) func() {
	start := time.Now()
	return func() {
		util.SettlementLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func orderRef(orderID int64) string {
	return fmt.Sprintf("ORDER_%d", orderID)
}

func inspectionRef(inspectionID int64) string {
	return fmt.Sprintf("INSPECTION_%d", inspectionID)
}

// moveOrder applies a checked transition, persists it and appends history
func moveOrder(ctx context.Context, repo store.Repository, order *models.Order, status, note string) error {
	previous := order.Status
	if err := order.TransitionTo(status); err != nil {
		return translate(err)
	}
	if err := repo.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return repo.InsertOrderStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:        order.ID,
		PreviousStatus: previous,
		NewStatus:      status,
		Note:           note,
	})
}

func orderEvent(eventType string, order *models.Order) *models.OrderEvent {
	return &models.OrderEvent{
		BaseEvent:    models.NewBaseEvent(eventType),
		OrderID:      order.ID,
		BuyerID:      order.BuyerID,
		SellerID:     order.SellerID,
		ItemID:       order.ItemID,
		AmountPoints: order.AmountPoints,
		Status:       order.Status,
	}
}
