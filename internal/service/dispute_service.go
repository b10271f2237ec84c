package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// DisputeService lets buyers and sellers contest an escrowed order and admins settle it
type DisputeService struct {
	store          store.TxRunner
	events         notifier
	commissionRate decimal.Decimal
	logger         *zap.Logger
}

// NewDisputeService creates a new dispute service
func NewDisputeService(txr store.TxRunner, publisher Publisher, business config.BusinessConfig) *DisputeService {
	logger := util.GetLogger()
	return &DisputeService{
		store:          txr,
		events:         notifier{pub: publisher, logger: logger},
		commissionRate: business.CommissionRate,
		logger:         logger,
	}
}

// CreateDispute freezes settlement of an escrowed order pending adjudication
func (s *DisputeService) CreateDispute(ctx context.Context, reporterID, orderID int64, reason string) (*models.Dispute, error) {
	ctx, span := util.StartSpan(ctx, "DisputeService.CreateDispute")
	var err error
	defer func() { util.EndSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		err = apperr.Validation("reason is required")
		return nil, err
	}

	var (
		dispute *models.Dispute
		order   *models.Order
	)
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		if reporterID != order.BuyerID && reporterID != order.SellerID {
			return apperr.Forbidden("only the buyer or seller can dispute order %d", orderID)
		}
		if order.Status != models.OrderStatusEscrowed {
			return apperr.InvalidState("order %d is %s, only escrowed orders can be disputed", orderID, order.Status)
		}

		if err := moveOrder(ctx, repo, order, models.OrderStatusDisputed, "Dispute opened: "+reason); err != nil {
			return err
		}

		dispute = &models.Dispute{
			OrderID:    orderID,
			ReporterID: reporterID,
			Reason:     reason,
			Status:     models.DisputeStatusOpen,
		}
		if err := repo.InsertDispute(ctx, dispute); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Duplicate("order %d already has an open dispute", orderID)
			}
			return fmt.Errorf("failed to create dispute: %w", err)
		}
		return record(ctx, repo, models.EntityDispute, dispute.ID, "opened", audit{"order_id": orderID, "reason": reason})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dispute opened",
		zap.Int64("dispute_id", dispute.ID),
		zap.Int64("order_id", orderID),
		zap.Int64("reporter_id", reporterID))

	event := orderEvent(models.EventTypeOrderDisputed, order)
	event.Reason = reason
	s.events.order(ctx, event)
	return dispute, nil
}

// MarkInvestigating records that an admin has picked the dispute up
func (s *DisputeService) MarkInvestigating(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		dispute, err = repo.LockDispute(ctx, disputeID)
		if err != nil {
			return translate(err)
		}
		if err := dispute.TransitionTo(models.DisputeStatusInvestigating); err != nil {
			return translate(err)
		}
		if err := repo.UpdateDispute(ctx, dispute); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityDispute, dispute.ID, "investigating", nil)
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute refunds the buyer or releases the escrow to the seller
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID int64, resolution, note string) (*models.Dispute, error) {
	ctx, span := util.StartSpan(ctx, "DisputeService.ResolveDispute")
	var err error
	defer func() { util.EndSpan(span, err) }()
	defer observe("resolve_dispute")()

	resolution = strings.ToUpper(strings.TrimSpace(resolution))
	if resolution != models.ResolutionRefund && resolution != models.ResolutionRelease {
		err = apperr.Validation("resolution must be %s or %s", models.ResolutionRefund, models.ResolutionRelease)
		return nil, err
	}

	var (
		dispute    *models.Dispute
		order      *models.Order
		commission int64
	)
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		dispute, err = repo.LockDispute(ctx, disputeID)
		if err != nil {
			return translate(err)
		}
		if !dispute.IsResolvable() {
			return apperr.InvalidState("dispute %d is already %s", disputeID, dispute.Status)
		}

		order, err = repo.LockOrder(ctx, dispute.OrderID)
		if err != nil {
			return translate(err)
		}
		if order.Status != models.OrderStatusDisputed {
			return apperr.InvalidState("order %d is %s, expected %s", order.ID, order.Status, models.OrderStatusDisputed)
		}
		if _, err := repo.LockItem(ctx, order.ItemID); err != nil {
			return translate(err)
		}
		wallets, err := ledger.LockWallets(ctx, repo, order.BuyerID, order.SellerID)
		if err != nil {
			return translate(err)
		}

		switch resolution {
		case models.ResolutionRefund:
			if err := refundEscrow(ctx, repo, order, wallets[order.BuyerID], "Dispute resolved in buyer's favour"); err != nil {
				return err
			}
			if err := moveOrder(ctx, repo, order, models.OrderStatusCancelled, "Dispute refunded"); err != nil {
				return err
			}
			if err := repo.UpdateItemStatus(ctx, order.ItemID, models.ItemStatusActive); err != nil {
				return err
			}
			err = dispute.TransitionTo(models.DisputeStatusResolvedRefund)

		case models.ResolutionRelease:
			commission, err = releaseEscrow(ctx, repo, order, wallets, s.commissionRate)
			if err != nil {
				return err
			}
			if err := moveOrder(ctx, repo, order, models.OrderStatusCompleted, "Dispute released to seller"); err != nil {
				return err
			}
			if err := repo.UpdateItemStatus(ctx, order.ItemID, models.ItemStatusSold); err != nil {
				return err
			}
			err = dispute.TransitionTo(models.DisputeStatusResolvedRelease)
		}
		if err != nil {
			return translate(err)
		}

		resolvedAt := time.Now().UTC()
		dispute.ResolutionNote = note
		dispute.ResolvedAt = &resolvedAt
		if err := repo.UpdateDispute(ctx, dispute); err != nil {
			return err
		}
		return record(ctx, repo, models.EntityDispute, dispute.ID, "resolved",
			audit{"resolution": resolution, "commission": commission, "note": note})
	})
	if err != nil {
		return nil, err
	}

	util.DisputesResolvedTotal.WithLabelValues(resolution).Inc()
	s.logger.Info("Dispute resolved",
		zap.Int64("dispute_id", dispute.ID),
		zap.Int64("order_id", order.ID),
		zap.String("resolution", resolution),
		zap.Int64("commission", commission))

	s.events.dispute(ctx, &models.DisputeEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeDisputeResolved),
		DisputeID:  dispute.ID,
		OrderID:    order.ID,
		Resolution: resolution,
		Status:     dispute.Status,
	})
	return dispute, nil
}

// GetDispute retrieves a dispute by ID
func (s *DisputeService) GetDispute(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		dispute, err = repo.GetDispute(ctx, disputeID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return dispute, nil
}

// ListDisputes returns disputes filtered by status, all when status is empty
func (s *DisputeService) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		disputes, err = repo.ListDisputes(ctx, status)
		return err
	})
	return disputes, translate(err)
}
