package models

import "time"

// Wallet holds a user's spendable and escrowed points
type Wallet struct {
	UserID          int64     `db:"user_id" json:"user_id"`
	AvailablePoints int64     `db:"available_points" json:"available_points"`
	FrozenPoints    int64     `db:"frozen_points" json:"frozen_points"`
	Version         int64     `db:"version" json:"version"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PointTransaction is one row of the append-only points ledger
type PointTransaction struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Type        string    `db:"type" json:"type"`
	Status      string    `db:"status" json:"status"`
	ReferenceID string    `db:"reference_id" json:"reference_id,omitempty"`
	Remarks     string    `db:"remarks" json:"remarks,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Item is the listing collaborator's row as seen by settlement
type Item struct {
	ID               int64     `db:"id" json:"id"`
	OwnerID          int64     `db:"owner_id" json:"owner_id"`
	PricePoints      int64     `db:"price_points" json:"price_points"`
	Status           string    `db:"status" json:"status"`
	InspectionStatus string    `db:"inspection_status" json:"inspection_status"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents an escrowed purchase of a single item
type Order struct {
	ID             int64     `db:"id" json:"id"`
	BuyerID        int64     `db:"buyer_id" json:"buyer_id"`
	SellerID       int64     `db:"seller_id" json:"seller_id"`
	ItemID         int64     `db:"item_id" json:"item_id"`
	AmountPoints   int64     `db:"amount_points" json:"amount_points"`
	Status         string    `db:"status" json:"status"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderStatusHistory records every order transition
type OrderStatusHistory struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        int64     `db:"order_id" json:"order_id"`
	PreviousStatus string    `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus      string    `db:"new_status" json:"new_status"`
	Note           string    `db:"note" json:"note,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Audited entity types
const (
	EntityInspection = "INSPECTION"
	EntityItem       = "ITEM"
	EntityDispute    = "DISPUTE"
	EntityWithdrawal = "WITHDRAWAL"
)

// EntityHistory is one audit record for an inspection, item, dispute or withdrawal.
// PerformedBy is nil when the action was not tied to an authenticated caller.
type EntityHistory struct {
	ID          int64     `db:"id" json:"id"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    int64     `db:"entity_id" json:"entity_id"`
	Action      string    `db:"action" json:"action"`
	PerformedBy *int64    `db:"performed_by" json:"performed_by,omitempty"`
	Metadata    string    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// InspectionRequest tracks a paid inspection of an item
type InspectionRequest struct {
	ID                int64      `db:"id" json:"id"`
	ItemID            int64      `db:"item_id" json:"item_id"`
	RequesterID       int64      `db:"requester_id" json:"requester_id"`
	InspectorID       *int64     `db:"inspector_id" json:"inspector_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	FeePoints         int64      `db:"fee_points" json:"fee_points"`
	PreferredDate     *time.Time `db:"preferred_date" json:"preferred_date,omitempty"`
	PreferredTimeSlot string     `db:"preferred_time_slot" json:"preferred_time_slot,omitempty"`
	Address           string     `db:"address" json:"address,omitempty"`
	ContactPhone      string     `db:"contact_phone" json:"contact_phone,omitempty"`
	Notes             string     `db:"notes" json:"notes,omitempty"`
	RejectionReason   string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// InspectionReport is the inspector's findings, one per request
type InspectionReport struct {
	ID                int64         `db:"id" json:"id"`
	RequestID         int64         `db:"request_id" json:"request_id"`
	FrameCondition    string        `db:"frame_condition" json:"frame_condition"`
	GroupsetCondition string        `db:"groupset_condition" json:"groupset_condition"`
	WheelCondition    string        `db:"wheel_condition" json:"wheel_condition"`
	OverallScore      int           `db:"overall_score" json:"overall_score"`
	Comments          string        `db:"comments" json:"comments,omitempty"`
	AdminDecision     string        `db:"admin_decision" json:"admin_decision,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	Medias            []ReportMedia `db:"-" json:"medias"`
}

// ReportMedia is a photo or video attached to an inspection report
type ReportMedia struct {
	ID        int64  `db:"id" json:"id"`
	ReportID  int64  `db:"report_id" json:"report_id"`
	URL       string `db:"url" json:"url"`
	Type      string `db:"type" json:"type"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
}

// Dispute is a buyer or seller complaint against an escrowed order
type Dispute struct {
	ID             int64      `db:"id" json:"id"`
	OrderID        int64      `db:"order_id" json:"order_id"`
	ReporterID     int64      `db:"reporter_id" json:"reporter_id"`
	Reason         string     `db:"reason" json:"reason"`
	Status         string     `db:"status" json:"status"`
	ResolutionNote string     `db:"resolution_note" json:"resolution_note,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Point transaction types
const (
	TxTypeDeposit       = "DEPOSIT"
	TxTypeWithdraw      = "WITHDRAW"
	TxTypeEarn          = "EARN"
	TxTypeSpend         = "SPEND"
	TxTypeEscrowHold    = "ESCROW_HOLD"
	TxTypeEscrowRelease = "ESCROW_RELEASE"
	TxTypeCommission    = "COMMISSION"
)

// Point transaction statuses
const (
	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"
)

// Order statuses
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusEscrowed       = "ESCROWED"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusDisputed       = "DISPUTED"
	OrderStatusCancelled      = "CANCELLED"
)

// Item statuses
const (
	ItemStatusDraft     = "DRAFT"
	ItemStatusActive    = "ACTIVE"
	ItemStatusVerified  = "VERIFIED"
	ItemStatusReserved  = "RESERVED"
	ItemStatusSold      = "SOLD"
	ItemStatusCancelled = "CANCELLED"
)

// Item inspection statuses
const (
	ItemInspectionNone      = "NONE"
	ItemInspectionRequested = "REQUESTED"
	ItemInspectionApproved  = "APPROVED"
	ItemInspectionRejected  = "REJECTED"
)

// Inspection request statuses
const (
	InspectionStatusRequested  = "REQUESTED"
	InspectionStatusAssigned   = "ASSIGNED"
	InspectionStatusInProgress = "IN_PROGRESS"
	InspectionStatusInspected  = "INSPECTED"
	InspectionStatusApproved   = "APPROVED"
	InspectionStatusRejected   = "REJECTED"
)

// Dispute statuses
const (
	DisputeStatusOpen            = "OPEN"
	DisputeStatusInvestigating   = "INVESTIGATING"
	DisputeStatusResolvedRefund  = "RESOLVED_REFUND"
	DisputeStatusResolvedRelease = "RESOLVED_RELEASE"
)

// Dispute resolutions
const (
	ResolutionRefund  = "REFUND"
	ResolutionRelease = "RELEASE"
)

// IsPurchasable reports whether an item can be escrowed by a buyer
func (i *Item) IsPurchasable() bool {
	return i.Status == ItemStatusActive || i.Status == ItemStatusVerified
}

// TransactionFilter narrows ledger queries
type TransactionFilter struct {
	UserID   int64
	Types    []string
	Statuses []string
	Limit    int
}
