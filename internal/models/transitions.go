package models

import "fmt"

// TransitionError is returned when a status change is not allowed
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

type transitionTable map[string][]string

func (t transitionTable) allows(from, to string) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

var orderTransitions = transitionTable{
	OrderStatusPendingPayment: {OrderStatusEscrowed, OrderStatusCancelled},
	OrderStatusEscrowed:       {OrderStatusCompleted, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusDisputed:       {OrderStatusCompleted, OrderStatusCancelled},
}

var inspectionTransitions = transitionTable{
	InspectionStatusRequested:  {InspectionStatusAssigned, InspectionStatusRejected},
	InspectionStatusAssigned:   {InspectionStatusInProgress, InspectionStatusRejected},
	InspectionStatusInProgress: {InspectionStatusInspected, InspectionStatusRejected},
	InspectionStatusInspected:  {InspectionStatusApproved, InspectionStatusRejected},
}

var disputeTransitions = transitionTable{
	DisputeStatusOpen:          {DisputeStatusInvestigating, DisputeStatusResolvedRefund, DisputeStatusResolvedRelease},
	DisputeStatusInvestigating: {DisputeStatusResolvedRefund, DisputeStatusResolvedRelease},
}

// TransitionTo moves the order to status or returns a *TransitionError
func (o *Order) TransitionTo(status string) error {
	if !orderTransitions.allows(o.Status, status) {
		return &TransitionError{Entity: "order", From: o.Status, To: status}
	}
	o.Status = status
	return nil
}

// TransitionTo moves the inspection request to status or returns a *TransitionError
func (r *InspectionRequest) TransitionTo(status string) error {
	if !inspectionTransitions.allows(r.Status, status) {
		return &TransitionError{Entity: "inspection", From: r.Status, To: status}
	}
	r.Status = status
	return nil
}

// TransitionTo moves the dispute to status or returns a *TransitionError
func (d *Dispute) TransitionTo(status string) error {
	if !disputeTransitions.allows(d.Status, status) {
		return &TransitionError{Entity: "dispute", From: d.Status, To: status}
	}
	d.Status = status
	return nil
}

// IsResolvable reports whether an admin can still adjudicate the dispute
func (d *Dispute) IsResolvable() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusInvestigating
}
