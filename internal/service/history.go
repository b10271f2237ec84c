package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
)

type actorKey struct{}

// WithActor tags ctx with the authenticated user so audit records name who acted
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func actorFrom(ctx context.Context) *int64 {
	if id, ok := ctx.Value(actorKey{}).(int64); ok && id > 0 {
		return &id
	}
	return nil
}

// audit is the metadata stored with a history record
type audit map[string]interface{}

// record appends an audit entry inside the caller's transaction
func record(ctx context.Context, repo store.Repository, entityType string, entityID int64, action string, meta audit) error {
	entry := &models.EntityHistory{
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		PerformedBy: actorFrom(ctx),
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode history metadata: %w", err)
		}
		entry.Metadata = string(raw)
	}
	if err := repo.InsertHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s %d %s: %w", entityType, entityID, action, err)
	}
	return nil
}

// HistoryService reads the audit trail of inspections, items, disputes and withdrawals
type HistoryService struct {
	store store.TxRunner
}

// NewHistoryService creates a new history service
func NewHistoryService(txr store.TxRunner) *HistoryService {
	return &HistoryService{store: txr}
}

// List returns the entity's records oldest first
func (s *HistoryService) List(ctx context.Context, entityType string, entityID int64) ([]models.EntityHistory, error) {
	entityType = strings.ToUpper(entityType)
	switch entityType {
	case models.EntityInspection, models.EntityItem, models.EntityDispute, models.EntityWithdrawal:
	default:
		return nil, apperr.Validation("unknown entity type %q", entityType)
	}

	var history []models.EntityHistory
	err := s.store.View(ctx, func(repo store.Repository) error {
		var err error
		history, err = repo.ListHistory(ctx, entityType, entityID)
		return err
	})
	return history, translate(err)
}
