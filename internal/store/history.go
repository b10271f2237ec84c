package store

import (
	"context"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertHistory appends an audit record. An empty Metadata is stored as {}.
func (q *queries) InsertHistory(ctx context.Context, entry *models.EntityHistory) error {
	if entry.Metadata == "" {
		entry.Metadata = "{}"
	}
	query := `
		INSERT INTO entity_history (entity_type, entity_id, action, performed_by, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, entry, query,
		entry.EntityType, entry.EntityID, entry.Action, entry.PerformedBy, entry.Metadata)
}

// ListHistory returns an entity's audit records oldest first
func (q *queries) ListHistory(ctx context.Context, entityType string, entityID int64) ([]models.EntityHistory, error) {
	history := []models.EntityHistory{}
	err := sqlx.SelectContext(ctx, q.ext, &history, `
		SELECT id, entity_type, entity_id, action, performed_by, metadata::text AS metadata, created_at
		FROM entity_history
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id`, entityType, entityID)
	return history, err
}
