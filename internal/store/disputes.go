package store

import (
	"context"
	"fmt"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertDispute creates a new dispute
func (q *queries) InsertDispute(ctx context.Context, dispute *models.Dispute) error {
	query := `
		INSERT INTO disputes (order_id, reporter_id, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.ext, dispute, query,
		dispute.OrderID, dispute.ReporterID, dispute.Reason, dispute.Status)
	return wrapWriteErr(err)
}

// GetDispute retrieves a dispute by ID
func (q *queries) GetDispute(ctx context.Context, id int64) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := q.get(ctx, &dispute, fmt.Sprintf("dispute %d", id),
		"SELECT * FROM disputes WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &dispute, nil
}

// LockDispute retrieves a dispute FOR UPDATE
func (q *queries) LockDispute(ctx context.Context, id int64) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := q.get(ctx, &dispute, fmt.Sprintf("dispute %d", id),
		"SELECT * FROM disputes WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &dispute, nil
}

// UpdateDispute persists status and resolution fields
func (q *queries) UpdateDispute(ctx context.Context, dispute *models.Dispute) error {
	return q.exec(ctx, fmt.Sprintf("dispute %d", dispute.ID), `
		UPDATE disputes
		SET status = $1, resolution_note = $2, resolved_at = $3
		WHERE id = $4`,
		dispute.Status, dispute.ResolutionNote, dispute.ResolvedAt, dispute.ID)
}

// ListDisputes returns disputes in the given status, or all when status is empty
func (q *queries) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	var disputes []models.Dispute
	var err error
	if status == "" {
		err = sqlx.SelectContext(ctx, q.ext, &disputes,
			"SELECT * FROM disputes ORDER BY created_at DESC")
	} else {
		err = sqlx.SelectContext(ctx, q.ext, &disputes,
			"SELECT * FROM disputes WHERE status = $1 ORDER BY created_at DESC", status)
	}
	return disputes, err
}
