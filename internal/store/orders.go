package store

import (
	"context"
	"errors"
	"fmt"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetItem retrieves an item by ID
func (q *queries) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	if err := q.get(ctx, &item, fmt.Sprintf("item %d", id),
		"SELECT * FROM items WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// LockItem retrieves an item FOR UPDATE so concurrent buyers serialize on it
func (q *queries) LockItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	if err := q.get(ctx, &item, fmt.Sprintf("item %d", id),
		"SELECT * FROM items WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemStatus updates item status
func (q *queries) UpdateItemStatus(ctx context.Context, id int64, status string) error {
	return q.exec(ctx, fmt.Sprintf("item %d", id),
		"UPDATE items SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
}

// UpdateItemInspectionStatus updates the item's inspection marker
func (q *queries) UpdateItemInspectionStatus(ctx context.Context, id int64, status string) error {
	return q.exec(ctx, fmt.Sprintf("item %d", id),
		"UPDATE items SET inspection_status = $1, updated_at = NOW() WHERE id = $2", status, id)
}

// InsertOrder creates a new order
func (q *queries) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, item_id, amount_points, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, order, query,
		order.BuyerID, order.SellerID, order.ItemID, order.AmountPoints, order.Status, order.IdempotencyKey)
	return wrapWriteErr(err)
}

// GetOrder retrieves an order by ID
func (q *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := q.get(ctx, &order, fmt.Sprintf("order %d", id),
		"SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder retrieves an order FOR UPDATE
func (q *queries) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := q.get(ctx, &order, fmt.Sprintf("order %d", id),
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, nil if none
func (q *queries) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := q.get(ctx, &order, "order by idempotency key",
		"SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (q *queries) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	return q.exec(ctx, fmt.Sprintf("order %d", id),
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
}

// InsertOrderStatusHistory appends a transition record
func (q *queries) InsertOrderStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, previous_status, new_status, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, entry, query,
		entry.OrderID, entry.PreviousStatus, entry.NewStatus, entry.Note)
}

// ListOrderStatusHistory returns transitions oldest first
func (q *queries) ListOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := sqlx.SelectContext(ctx, q.ext, &history,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", orderID)
	return history, err
}
