package ledger

import (
	"escrow-service/internal/models"
	"escrow-service/internal/util"
)

func recordMovement(tx *models.PointTransaction) {
	util.LedgerEntriesTotal.WithLabelValues(tx.Type, tx.Status).Inc()
	util.LedgerPointsTotal.WithLabelValues(tx.Type).Add(float64(tx.Amount))
}
