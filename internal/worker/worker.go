package worker

import (
	"context"

	"escrow-service/internal/broker"
	"escrow-service/internal/models"
	"escrow-service/internal/util"

	"go.uber.org/zap"
)

// MessageSource delivers broker messages to a handler until ctx ends.
// *broker.Consumer satisfies it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// DepositHandler credits a confirmed deposit at most once
type DepositHandler interface {
	HandleDepositConfirmed(ctx context.Context, event *models.DepositConfirmedEvent) error
}

// DepositWorker consumes DEPOSIT_CONFIRMED events and credits wallets
type DepositWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewDepositWorker creates a new deposit worker
func NewDepositWorker(source MessageSource, deposits DepositHandler) *DepositWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnDepositConfirmed(deposits.HandleDepositConfirmed)

	return &DepositWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming until ctx is cancelled
func (w *DepositWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting deposit worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *DepositWorker) Stop() error {
	w.logger.Info("Stopping deposit worker")
	return w.source.Close()
}
