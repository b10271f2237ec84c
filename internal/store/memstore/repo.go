package memstore

import (
	"context"
	"fmt"
	"sort"

	"escrow-service/internal/models"
	"escrow-service/internal/store"
)

// repo is a store.Repository bound to one working copy. Row locks are implicit
// because Store serializes transactions.
type repo struct {
	st *state
}

var _ store.Repository = (*repo)(nil)

func (r *repo) CreateWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	if _, ok := r.st.wallets[userID]; !ok {
		r.st.wallets[userID] = models.Wallet{UserID: userID, UpdatedAt: now()}
	}
	return r.GetWallet(ctx, userID)
}

func (r *repo) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	w, ok := r.st.wallets[userID]
	if !ok {
		return nil, notFound("wallet %d", userID)
	}
	return &w, nil
}

func (r *repo) LockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	return r.GetWallet(ctx, userID)
}

func (r *repo) UpdateWalletBalances(ctx context.Context, wallet *models.Wallet) error {
	cur, ok := r.st.wallets[wallet.UserID]
	if !ok {
		return notFound("wallet %d", wallet.UserID)
	}
	cur.AvailablePoints = wallet.AvailablePoints
	cur.FrozenPoints = wallet.FrozenPoints
	cur.Version++
	cur.UpdatedAt = now()
	r.st.wallets[wallet.UserID] = cur
	wallet.Version = cur.Version
	wallet.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *repo) InsertPointTransaction(ctx context.Context, tx *models.PointTransaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("point transaction amount must be positive, got %d", tx.Amount)
	}
	if _, ok := r.st.wallets[tx.UserID]; !ok {
		return notFound("wallet %d", tx.UserID)
	}
	if tx.Type == models.TxTypeDeposit && tx.Status == models.TxStatusSuccess && tx.ReferenceID != "" {
		for _, existing := range r.st.txs {
			if existing.Type == tx.Type && existing.Status == tx.Status && existing.ReferenceID == tx.ReferenceID {
				return duplicate("deposit reference %s", tx.ReferenceID)
			}
		}
	}
	tx.ID = r.st.next("point_transactions")
	tx.CreatedAt = now()
	r.st.txs[tx.ID] = *tx
	return nil
}

func (r *repo) GetPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error) {
	tx, ok := r.st.txs[id]
	if !ok {
		return nil, notFound("point transaction %d", id)
	}
	return &tx, nil
}

func (r *repo) LockPointTransaction(ctx context.Context, id int64) (*models.PointTransaction, error) {
	return r.GetPointTransaction(ctx, id)
}

func (r *repo) UpdatePointTransactionStatus(ctx context.Context, id int64, status, remarks string) error {
	tx, ok := r.st.txs[id]
	if !ok {
		return notFound("point transaction %d", id)
	}
	tx.Status = status
	if remarks != "" {
		tx.Remarks = remarks
	}
	r.st.txs[id] = tx
	return nil
}

func (r *repo) FindPointTransactionByReference(ctx context.Context, txType, referenceID, status string) (*models.PointTransaction, error) {
	var found *models.PointTransaction
	for _, tx := range r.st.txs {
		if tx.Type != txType || tx.ReferenceID != referenceID || tx.Status != status {
			continue
		}
		if found == nil || tx.ID < found.ID {
			tx := tx
			found = &tx
		}
	}
	return found, nil
}

func (r *repo) ListPointTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.PointTransaction, error) {
	out := []models.PointTransaction{}
	for _, tx := range r.st.txs {
		if filter.UserID != 0 && tx.UserID != filter.UserID {
			continue
		}
		if len(filter.Types) > 0 && !contains(filter.Types, tx.Type) {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, tx.Status) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *repo) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, ok := r.st.items[id]
	if !ok {
		return nil, notFound("item %d", id)
	}
	return &item, nil
}

func (r *repo) LockItem(ctx context.Context, id int64) (*models.Item, error) {
	return r.GetItem(ctx, id)
}

func (r *repo) UpdateItemStatus(ctx context.Context, id int64, status string) error {
	item, ok := r.st.items[id]
	if !ok {
		return notFound("item %d", id)
	}
	item.Status = status
	item.UpdatedAt = now()
	r.st.items[id] = item
	return nil
}

func (r *repo) UpdateItemInspectionStatus(ctx context.Context, id int64, status string) error {
	item, ok := r.st.items[id]
	if !ok {
		return notFound("item %d", id)
	}
	item.InspectionStatus = status
	item.UpdatedAt = now()
	r.st.items[id] = item
	return nil
}

func (r *repo) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, ok := r.st.orderKeys[order.IdempotencyKey]; ok {
		return duplicate("idempotency key %s", order.IdempotencyKey)
	}
	order.ID = r.st.next("orders")
	order.CreatedAt = now()
	order.UpdatedAt = order.CreatedAt
	r.st.orders[order.ID] = *order
	r.st.orderKeys[order.IdempotencyKey] = order.ID
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return nil, notFound("order %d", id)
	}
	return &order, nil
}

func (r *repo) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *repo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	id, ok := r.st.orderKeys[key]
	if !ok {
		return nil, nil
	}
	return r.GetOrder(ctx, id)
}

func (r *repo) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	order, ok := r.st.orders[id]
	if !ok {
		return notFound("order %d", id)
	}
	order.Status = status
	order.UpdatedAt = now()
	r.st.orders[id] = order
	return nil
}

func (r *repo) InsertOrderStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	if _, ok := r.st.orders[entry.OrderID]; !ok {
		return notFound("order %d", entry.OrderID)
	}
	entry.ID = r.st.next("order_status_history")
	entry.CreatedAt = now()
	r.st.history = append(r.st.history, *entry)
	return nil
}

func (r *repo) ListOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	out := []models.OrderStatusHistory{}
	for _, h := range r.st.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *repo) InsertInspection(ctx context.Context, req *models.InspectionRequest) error {
	req.ID = r.st.next("inspection_requests")
	req.CreatedAt = now()
	req.UpdatedAt = req.CreatedAt
	r.st.inspections[req.ID] = *req
	return nil
}

func (r *repo) GetInspection(ctx context.Context, id int64) (*models.InspectionRequest, error) {
	req, ok := r.st.inspections[id]
	if !ok {
		return nil, notFound("inspection %d", id)
	}
	return &req, nil
}

func (r *repo) LockInspection(ctx context.Context, id int64) (*models.InspectionRequest, error) {
	return r.GetInspection(ctx, id)
}

func (r *repo) UpdateInspection(ctx context.Context, req *models.InspectionRequest) error {
	cur, ok := r.st.inspections[req.ID]
	if !ok {
		return notFound("inspection %d", req.ID)
	}
	cur.InspectorID = req.InspectorID
	cur.Status = req.Status
	cur.RejectionReason = req.RejectionReason
	cur.StartedAt = req.StartedAt
	cur.CompletedAt = req.CompletedAt
	cur.UpdatedAt = now()
	r.st.inspections[req.ID] = cur
	req.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *repo) ListInspections(ctx context.Context, status string) ([]models.InspectionRequest, error) {
	out := []models.InspectionRequest{}
	for _, req := range r.st.inspections {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *repo) InsertInspectionReport(ctx context.Context, report *models.InspectionReport) error {
	for _, existing := range r.st.reports {
		if existing.RequestID == report.RequestID {
			return duplicate("report for inspection %d", report.RequestID)
		}
	}
	report.ID = r.st.next("inspection_reports")
	report.CreatedAt = now()
	for i := range report.Medias {
		report.Medias[i].ID = r.st.next("report_medias")
		report.Medias[i].ReportID = report.ID
	}
	stored := *report
	stored.Medias = append([]models.ReportMedia(nil), report.Medias...)
	r.st.reports[report.ID] = stored
	return nil
}

func (r *repo) GetInspectionReportByRequest(ctx context.Context, requestID int64) (*models.InspectionReport, error) {
	for _, report := range r.st.reports {
		if report.RequestID == requestID {
			report.Medias = append([]models.ReportMedia(nil), report.Medias...)
			sort.SliceStable(report.Medias, func(i, j int) bool {
				return report.Medias[i].SortOrder < report.Medias[j].SortOrder
			})
			return &report, nil
		}
	}
	return nil, notFound("report for inspection %d", requestID)
}

func (r *repo) UpdateInspectionReportDecision(ctx context.Context, reportID int64, decision string) error {
	report, ok := r.st.reports[reportID]
	if !ok {
		return notFound("report %d", reportID)
	}
	report.AdminDecision = decision
	r.st.reports[reportID] = report
	return nil
}

func (r *repo) InsertDispute(ctx context.Context, dispute *models.Dispute) error {
	for _, existing := range r.st.disputes {
		if existing.OrderID == dispute.OrderID && existing.IsResolvable() {
			return duplicate("open dispute for order %d", dispute.OrderID)
		}
	}
	dispute.ID = r.st.next("disputes")
	dispute.CreatedAt = now()
	r.st.disputes[dispute.ID] = *dispute
	return nil
}

func (r *repo) GetDispute(ctx context.Context, id int64) (*models.Dispute, error) {
	dispute, ok := r.st.disputes[id]
	if !ok {
		return nil, notFound("dispute %d", id)
	}
	return &dispute, nil
}

func (r *repo) LockDispute(ctx context.Context, id int64) (*models.Dispute, error) {
	return r.GetDispute(ctx, id)
}

func (r *repo) UpdateDispute(ctx context.Context, dispute *models.Dispute) error {
	if _, ok := r.st.disputes[dispute.ID]; !ok {
		return notFound("dispute %d", dispute.ID)
	}
	r.st.disputes[dispute.ID] = *dispute
	return nil
}

func (r *repo) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	out := []models.Dispute{}
	for _, d := range r.st.disputes {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func (r *repo) InsertHistory(ctx context.Context, entry *models.EntityHistory) error {
	if entry.Metadata == "" {
		entry.Metadata = "{}"
	}
	entry.ID = r.st.next("entity_history")
	entry.CreatedAt = now()
	r.st.audit = append(r.st.audit, *entry)
	return nil
}

func (r *repo) ListHistory(ctx context.Context, entityType string, entityID int64) ([]models.EntityHistory, error) {
	out := []models.EntityHistory{}
	for _, h := range r.st.audit {
		if h.EntityType == entityType && h.EntityID == entityID {
			out = append(out, h)
		}
	}
	return out, nil
}
