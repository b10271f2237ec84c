package service

import (
	"context"
	"errors"
	"fmt"
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

// InspectionService escrows inspection fees and pays inspectors on approval
type InspectionService struct {
	store          store.TxRunner
	events         notifier
	fee            int64
	inspectorShare decimal.Decimal
	logger         *zap.Logger
}

// NewInspectionService creates a new inspection service
func NewInspectionService(txr store.TxRunner, publisher Publisher, business config.BusinessConfig) *InspectionService {
	logger := util.GetLogger()
	return &InspectionService{
		store:          txr,
		events:         notifier{pub: publisher, logger: logger},
		fee:            business.InspectionFee,
		inspectorShare: business.InspectorShare,
		logger:         logger,
	}
}

// InspectionSchedule is the requester's preferred visit
type InspectionSchedule struct {
	PreferredDate     *time.Time `json:"preferred_date,omitempty"`
	PreferredTimeSlot string     `json:"preferred_time_slot,omitempty" validate:"max=64"`
	Address           string     `json:"address" validate:"required"`
	ContactPhone      string     `json:"contact_phone" validate:"required,max=32"`
	Notes             string     `json:"notes,omitempty"`
}

// ReportMediaInput is one photo or video attached to a report
type ReportMediaInput struct {
	URL       string `json:"url" validate:"required,url"`
	Type      string `json:"type" validate:"required,oneof=IMAGE VIDEO"`
	SortOrder int    `json:"sort_order" validate:"min=0"`
}

// SubmitReportRequest is the inspector's findings
type SubmitReportRequest struct {
	FrameCondition    string             `json:"frame_condition" validate:"required"`
	GroupsetCondition string             `json:"groupset_condition" validate:"required"`
	WheelCondition    string             `json:"wheel_condition" validate:"required"`
	OverallScore      int                `json:"overall_score" validate:"min=0,max=100"`
	Comments          string             `json:"comments,omitempty"`
	Medias            []ReportMediaInput `json:"medias" validate:"dive"`
}

// InspectionDetails is a request together with its report, if submitted
type InspectionDetails struct {
	Request *models.InspectionRequest `json:"request"`
	Report  *models.InspectionReport  `json:"report,omitempty"`
}

// RequestInspection freezes the fee from the item owner and opens a request
func (s *InspectionService) RequestInspection(ctx context.Context, requesterID, itemID int64, schedule InspectionSchedule) (*models.InspectionRequest, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.RequestInspection")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("request_inspection")()

	if err = validateStruct(schedule); err != nil {
		return nil, err
	}

	var req *models.InspectionRequest
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		item, err := repo.LockItem(ctx, itemID)
		if err != nil {
			return translate(err)
		}
		if item.OwnerID != requesterID {
			return apperr.Forbidden("only the item owner can request an inspection")
		}
		if item.InspectionStatus == models.ItemInspectionRequested {
			return apperr.InvalidState("item %d already has an inspection in progress", itemID)
		}

		requester, err := repo.LockWallet(ctx, requesterID)
		if err != nil {
			return translate(err)
		}

		req = &models.InspectionRequest{
			ItemID:            itemID,
			RequesterID:       requesterID,
			Status:            models.InspectionStatusRequested,
			FeePoints:         s.fee,
			PreferredDate:     schedule.PreferredDate,
			PreferredTimeSlot: schedule.PreferredTimeSlot,
			Address:           schedule.Address,
			ContactPhone:      schedule.ContactPhone,
			Notes:             schedule.Notes,
		}
		if err := repo.InsertInspection(ctx, req); err != nil {
			return fmt.Errorf("failed to create inspection request: %w", err)
		}

		if _, err := ledger.Freeze(ctx, repo, requester, ledger.Entry{
			Amount:      s.fee,
			ReferenceID: inspectionRef(req.ID),
			Remarks:     fmt.Sprintf("Inspection fee for item %d", itemID),
		}); err != nil {
			return err
		}

		if err := repo.UpdateItemInspectionStatus(ctx, itemID, models.ItemInspectionRequested); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityInspection, req.ID, "requested", audit{"item_id": itemID, "fee_points": s.fee})
	})
	if err != nil {
		return nil, err
	}

	util.InspectionsTotal.WithLabelValues(models.InspectionStatusRequested).Inc()
	s.logger.Info("Inspection requested",
		zap.Int64("inspection_id", req.ID),
		zap.Int64("item_id", itemID),
		zap.Int64("fee", req.FeePoints))

	s.events.inspection(ctx, inspectionEvent(models.EventTypeInspectionRequested, req))
	return req, nil
}

// AssignInspector hands a REQUESTED inspection to an inspector. The inspector
// must hold a wallet to be paid from and cannot be the requester.
func (s *InspectionService) AssignInspector(ctx context.Context, inspectionID, inspectorID int64) (*models.InspectionRequest, error) {
	return s.advance(ctx, inspectionID, "InspectionService.AssignInspector", func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error {
		if inspectorID <= 0 {
			return apperr.Validation("inspector_id must be positive")
		}
		if inspectorID == req.RequesterID {
			return apperr.Validation("inspector %d requested inspection %d and cannot perform it", inspectorID, req.ID)
		}
		if _, err := repo.GetWallet(ctx, inspectorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("inspector %d has no wallet", inspectorID)
			}
			return err
		}
		if err := req.TransitionTo(models.InspectionStatusAssigned); err != nil {
			return translate(err)
		}
		req.InspectorID = &inspectorID
		return record(ctx, repo, models.EntityInspection, req.ID, "assigned", audit{"inspector_id": inspectorID})
	})
}

// StartInspection marks the visit as under way
func (s *InspectionService) StartInspection(ctx context.Context, inspectionID, inspectorID int64) (*models.InspectionRequest, error) {
	return s.advance(ctx, inspectionID, "InspectionService.StartInspection", func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error {
		if err := requireAssigned(req, inspectorID); err != nil {
			return err
		}
		if err := req.TransitionTo(models.InspectionStatusInProgress); err != nil {
			return translate(err)
		}
		now := time.Now().UTC()
		req.StartedAt = &now
		return record(ctx, repo, models.EntityInspection, req.ID, "started", nil)
	})
}

// SubmitReport stores the findings and moves the inspection to INSPECTED
func (s *InspectionService) SubmitReport(ctx context.Context, inspectionID, inspectorID int64, input SubmitReportRequest) (*InspectionDetails, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	report := &models.InspectionReport{
		RequestID:         inspectionID,
		FrameCondition:    input.FrameCondition,
		GroupsetCondition: input.GroupsetCondition,
		WheelCondition:    input.WheelCondition,
		OverallScore:      input.OverallScore,
		Comments:          input.Comments,
	}
	for _, m := range input.Medias {
		report.Medias = append(report.Medias, models.ReportMedia{URL: m.URL, Type: m.Type, SortOrder: m.SortOrder})
	}

	var stored *models.InspectionReport
	req, err := s.advance(ctx, inspectionID, "InspectionService.SubmitReport", func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error {
		if err := requireAssigned(req, inspectorID); err != nil {
			return err
		}
		if err := req.TransitionTo(models.InspectionStatusInspected); err != nil {
			return translate(err)
		}
		now := time.Now().UTC()
		req.CompletedAt = &now
		return nil
	}, func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error {
		if err := repo.InsertInspectionReport(ctx, report); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Duplicate("inspection %d already has a report", inspectionID)
			}
			return fmt.Errorf("failed to store report: %w", err)
		}
		stored = report
		return record(ctx, repo, models.EntityInspection, req.ID, "report_submitted",
			audit{"report_id": report.ID, "overall_score": report.OverallScore})
	})
	if err != nil {
		return nil, err
	}
	return &InspectionDetails{Request: req, Report: stored}, nil
}

// advance applies mutate to a locked inspection and persists it. mutate and extra
// run in the same transaction, extra after the update.
func (s *InspectionService) advance(
	ctx context.Context,
	inspectionID int64,
	spanName string,
	mutate func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error,
	extra ...func(ctx context.Context, repo store.Repository, req *models.InspectionRequest) error,
) (*models.InspectionRequest, error) {
	ctx, span := util.StartSpan(ctx, spanName)
	var err error
	defer func() { util.EndSpan(span, err) }()

	var req *models.InspectionRequest
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		req, err = repo.LockInspection(ctx, inspectionID)
		if err != nil {
			return translate(err)
		}
		if err := mutate(ctx, repo, req); err != nil {
			return err
		}
		if err := repo.UpdateInspection(ctx, req); err != nil {
			return fmt.Errorf("failed to update inspection: %w", err)
		}
		for _, fn := range extra {
			if err := fn(ctx, repo, req); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Inspection updated",
		zap.Int64("inspection_id", req.ID),
		zap.String("status", req.Status))
	return req, nil
}

// AdminApproveInspection pays the inspector their share of the fee and marks the item verified
func (s *InspectionService) AdminApproveInspection(ctx context.Context, inspectionID int64) (*models.InspectionRequest, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.AdminApproveInspection")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("approve_inspection")()

	var (
		req      *models.InspectionRequest
		share    int64
		platform int64
	)
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		req, err = repo.LockInspection(ctx, inspectionID)
		if err != nil {
			return translate(err)
		}
		if req.InspectorID == nil {
			return apperr.InvalidState("inspection %d has no inspector", inspectionID)
		}
		if err := req.TransitionTo(models.InspectionStatusApproved); err != nil {
			return translate(err)
		}

		item, err := repo.LockItem(ctx, req.ItemID)
		if err != nil {
			return translate(err)
		}
		wallets, err := ledger.LockWallets(ctx, repo, req.RequesterID, *req.InspectorID)
		if err != nil {
			return translate(err)
		}

		ref := inspectionRef(req.ID)
		share, platform = ledger.SplitFee(req.FeePoints, s.inspectorShare)
		if _, err := ledger.Unfreeze(ctx, repo, wallets[req.RequesterID], ledger.Entry{
			Amount: req.FeePoints, ReferenceID: ref, Remarks: "Inspection fee paid",
		}); err != nil {
			return err
		}
		if share > 0 {
			if _, err := ledger.CreditAvailable(ctx, repo, wallets[*req.InspectorID], ledger.Entry{
				Amount: share, ReferenceID: ref, Remarks: "Inspection fee share",
			}); err != nil {
				return err
			}
		}
		if _, err := ledger.RecordCommission(ctx, repo, req.RequesterID, platform, ref, "Inspection platform fee"); err != nil {
			return err
		}

		if err := repo.UpdateInspection(ctx, req); err != nil {
			return fmt.Errorf("failed to update inspection: %w", err)
		}
		if err := repo.UpdateItemInspectionStatus(ctx, item.ID, models.ItemInspectionApproved); err != nil {
			return err
		}
		if item.Status == models.ItemStatusActive || item.Status == models.ItemStatusDraft {
			if err := repo.UpdateItemStatus(ctx, item.ID, models.ItemStatusVerified); err != nil {
				return err
			}
			if err := record(ctx, repo, models.EntityItem, item.ID, "verified", audit{"inspection_id": req.ID}); err != nil {
				return err
			}
		}
		if err := s.decideReport(ctx, repo, req.ID, models.InspectionStatusApproved); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityInspection, req.ID, "approved",
			audit{"inspector_id": *req.InspectorID, "inspector_share": share, "platform_fee": platform})
	})
	if err != nil {
		return nil, err
	}

	util.InspectionsTotal.WithLabelValues(models.InspectionStatusApproved).Inc()
	util.CommissionPointsTotal.Add(float64(platform))
	s.logger.Info("Inspection approved",
		zap.Int64("inspection_id", req.ID),
		zap.Int64("inspector_id", *req.InspectorID),
		zap.Int64("inspector_share", share))

	event := inspectionEvent(models.EventTypeInspectionApproved, req)
	event.InspectorShare = share
	s.events.inspection(ctx, event)
	return req, nil
}

// AdminRejectInspection refunds the fee to the requester from any non-terminal state
func (s *InspectionService) AdminRejectInspection(ctx context.Context, inspectionID int64, reason string) (*models.InspectionRequest, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.AdminRejectInspection")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("reject_inspection")()

	var req *models.InspectionRequest
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		req, err = repo.LockInspection(ctx, inspectionID)
		if err != nil {
			return translate(err)
		}
		if err := req.TransitionTo(models.InspectionStatusRejected); err != nil {
			return translate(err)
		}
		req.RejectionReason = reason

		if _, err := repo.LockItem(ctx, req.ItemID); err != nil {
			return translate(err)
		}
		wallets, err := ledger.LockWallets(ctx, repo, req.RequesterID)
		if err != nil {
			return translate(err)
		}
		if _, err := ledger.RefundToAvailable(ctx, repo, wallets[req.RequesterID], ledger.Entry{
			Amount: req.FeePoints, ReferenceID: inspectionRef(req.ID), Remarks: "Inspection fee refunded",
		}); err != nil {
			return err
		}

		if err := repo.UpdateInspection(ctx, req); err != nil {
			return fmt.Errorf("failed to update inspection: %w", err)
		}
		if err := repo.UpdateItemInspectionStatus(ctx, req.ItemID, models.ItemInspectionRejected); err != nil {
			return err
		}
		if err := s.decideReport(ctx, repo, req.ID, models.InspectionStatusRejected); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityInspection, req.ID, "rejected", audit{"reason": reason, "refunded": req.FeePoints})
	})
	if err != nil {
		return nil, err
	}

	util.InspectionsTotal.WithLabelValues(models.InspectionStatusRejected).Inc()
	s.logger.Info("Inspection rejected",
		zap.Int64("inspection_id", req.ID),
		zap.String("reason", reason))

	event := inspectionEvent(models.EventTypeInspectionRejected, req)
	event.Reason = reason
	s.events.inspection(ctx, event)
	return req, nil
}

func (s *InspectionService) decideReport(ctx context.Context, repo store.Repository, inspectionID int64, decision string) error {
	report, err := repo.GetInspectionReportByRequest(ctx, inspectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return repo.UpdateInspectionReportDecision(ctx, report.ID, decision)
}

// GetInspection returns a request with its report
func (s *InspectionService) GetInspection(ctx context.Context, inspectionID int64) (*InspectionDetails, error) {
	details := &InspectionDetails{}
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		details.Request, err = repo.GetInspection(ctx, inspectionID)
		if err != nil {
			return err
		}
		details.Report, err = repo.GetInspectionReportByRequest(ctx, inspectionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return details, nil
}

// ListInspections returns requests filtered by status, all when status is empty
func (s *InspectionService) ListInspections(ctx context.Context, status string) ([]models.InspectionRequest, error) {
	var reqs []models.InspectionRequest
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		reqs, err = repo.ListInspections(ctx, status)
		return err
	})
	return reqs, translate(err)
}

func requireAssigned(req *models.InspectionRequest, inspectorID int64) error {
	if req.InspectorID == nil || *req.InspectorID != inspectorID {
		return apperr.Forbidden("inspection %d is not assigned to inspector %d", req.ID, inspectorID)
	}
	return nil
}

func inspectionEvent(eventType string, req *models.InspectionRequest) *models.InspectionEvent {
	event := &models.InspectionEvent{
		BaseEvent:    models.NewBaseEvent(eventType),
		InspectionID: req.ID,
		ItemID:       req.ItemID,
		RequesterID:  req.RequesterID,
		FeePoints:    req.FeePoints,
	}
	if req.InspectorID != nil {
		event.InspectorID = *req.InspectorID
	}
	return event
}
