package service

import (
	"context"
	"testing"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disputedOrder(t *testing.T, f *fixture) (*models.Order, *models.Dispute) {
	t.Helper()
	ctx := context.Background()
	f.fund(t, buyerID, 1000)
	item := f.item(400)

	order, err := f.orders.CreateOrder(ctx, buyerID, item.ID, "dispute-"+t.Name())
	require.NoError(t, err)
	dispute, err := f.disputes.CreateDispute(ctx, buyerID, order.ID, "frame is cracked")
	require.NoError(t, err)
	return order, dispute
}

func TestResolveDisputeRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, dispute := disputedOrder(t, f)

	got, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDisputed, got.Status)

	_, err = f.orders.ApproveOrder(ctx, order.ID, buyerID)
	requireCode(t, err, apperr.CodeInvalidState)

	_, err = f.disputes.MarkInvestigating(ctx, dispute.ID)
	require.NoError(t, err)

	resolved, err := f.disputes.ResolveDispute(ctx, dispute.ID, "refund", "seller did not respond")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolvedRefund, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	buyer := f.wallet(t, buyerID)
	assert.Equal(t, int64(1000), buyer.AvailablePoints)
	assert.Equal(t, int64(0), buyer.FrozenPoints)

	got, err = f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, models.ItemStatusActive, f.itemStatus(t, order.ItemID).Status)

	_, err = f.disputes.ResolveDispute(ctx, dispute.ID, "release", "")
	requireCode(t, err, apperr.CodeInvalidState)
	assert.Equal(t, []string{"opened", "investigating", "resolved"}, f.actions(t, models.EntityDispute, dispute.ID))
	f.assertConserved(t)
}

func TestResolveDisputeRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, dispute := disputedOrder(t, f)

	resolved, err := f.disputes.ResolveDispute(ctx, dispute.ID, models.ResolutionRelease, "item as described")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolvedRelease, resolved.Status)

	assert.Equal(t, int64(380), f.wallet(t, sellerID).AvailablePoints)
	assert.Equal(t, int64(0), f.wallet(t, buyerID).FrozenPoints)
	assert.Equal(t, models.ItemStatusSold, f.itemStatus(t, order.ItemID).Status)
	assert.Contains(t, f.pub.types(), models.EventTypeDisputeResolved)
	f.assertConserved(t)
}

func TestCreateDisputeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := disputedOrder(t, f)

	_, err := f.disputes.CreateDispute(ctx, buyerID, order.ID, "again")
	requireCode(t, err, apperr.CodeInvalidState)

	_, err = f.disputes.CreateDispute(ctx, inspectorID, order.ID, "not mine")
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.disputes.CreateDispute(ctx, buyerID, order.ID, "  ")
	requireCode(t, err, apperr.CodeValidation)

	open, err := f.disputes.ListDisputes(ctx, models.DisputeStatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestResolveDisputeUnknownResolution(t *testing.T) {
	f := newFixture(t)
	_, dispute := disputedOrder(t, f)

	_, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, "SPLIT", "")
	requireCode(t, err, apperr.CodeValidation)
}
