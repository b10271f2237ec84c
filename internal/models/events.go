package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderEscrowed       = "ORDER_ESCROWED"
	EventTypeOrderCompleted      = "ORDER_COMPLETED"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypeOrderDisputed       = "ORDER_DISPUTED"
	EventTypeDisputeResolved     = "DISPUTE_RESOLVED"
	EventTypeInspectionRequested = "INSPECTION_REQUESTED"
	EventTypeInspectionApproved  = "INSPECTION_APPROVED"
	EventTypeInspectionRejected  = "INSPECTION_REJECTED"
	EventTypeWithdrawalRequested = "WITHDRAWAL_REQUESTED"
	EventTypeWithdrawalApproved  = "WITHDRAWAL_APPROVED"
	EventTypeWithdrawalRejected  = "WITHDRAWAL_REJECTED"
	EventTypeDepositCredited     = "DEPOSIT_CREDITED"
	EventTypeDepositConfirmed    = "DEPOSIT_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderEvent is published on every settled order transition
type OrderEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	BuyerID      int64  `json:"buyer_id"`
	SellerID     int64  `json:"seller_id"`
	ItemID       int64  `json:"item_id"`
	AmountPoints int64  `json:"amount_points"`
	Commission   int64  `json:"commission,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// DisputeEvent published when a dispute is resolved
type DisputeEvent struct {
	BaseEvent
	DisputeID  int64  `json:"dispute_id"`
	OrderID    int64  `json:"order_id"`
	Resolution string `json:"resolution"`
	Status     string `json:"status"`
}

// InspectionEvent published on inspection escrow movements
type InspectionEvent struct {
	BaseEvent
	InspectionID   int64  `json:"inspection_id"`
	ItemID         int64  `json:"item_id"`
	RequesterID    int64  `json:"requester_id"`
	InspectorID    int64  `json:"inspector_id,omitempty"`
	FeePoints      int64  `json:"fee_points"`
	InspectorShare int64  `json:"inspector_share,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// WalletEvent published for deposits and withdrawals
type WalletEvent struct {
	BaseEvent
	UserID        int64  `json:"user_id"`
	TransactionID int64  `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Status        string `json:"status"`
}

// DepositConfirmedEvent is delivered by the payment gateway adapter, at least once
type DepositConfirmedEvent struct {
	BaseEvent
	UserID         int64  `json:"user_id"`
	AmountExternal int64  `json:"amount_external"`
	ReferenceID    string `json:"reference_id"`
}
