package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"escrow-service/internal/models"
	"escrow-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is satisfied by Producer
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing settlement events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order transition keyed by order
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishDisputeEvent publishes a dispute resolution keyed by order
func (ep *EventPublisher) PublishDisputeEvent(ctx context.Context, event *models.DisputeEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishInspectionEvent publishes an inspection escrow movement keyed by item
func (ep *EventPublisher) PublishInspectionEvent(ctx context.Context, event *models.InspectionEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("item-%d", event.ItemID), event)
}

// PublishWalletEvent publishes a deposit or withdrawal keyed by user
func (ep *EventPublisher) PublishWalletEvent(ctx context.Context, event *models.WalletEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("user-%d", event.UserID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onDepositConfirmed func(context.Context, *models.DepositConfirmedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnDepositConfirmed registers a handler for DepositConfirmed events
func (eh *EventHandler) OnDepositConfirmed(handler func(context.Context, *models.DepositConfirmedEvent) error) {
	eh.onDepositConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers. Unknown types are
// skipped so the consumer can commit past them.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: failed to unmarshal base event: %v", ErrUnprocessable, err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeDepositConfirmed:
		if eh.onDepositConfirmed != nil {
			var event models.DepositConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal DepositConfirmed event: %v", ErrUnprocessable, err)
			}
			return eh.onDepositConfirmed(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
