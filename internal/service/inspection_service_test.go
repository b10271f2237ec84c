package service

import (
	"context"
	"testing"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedule() InspectionSchedule {
	return InspectionSchedule{Address: "12 Nguyen Hue, District 1", ContactPhone: "0901234567"}
}

func report() SubmitReportRequest {
	return SubmitReportRequest{
		FrameCondition:    "GOOD",
		GroupsetCondition: "FAIR",
		WheelCondition:    "GOOD",
		OverallScore:      82,
		Medias: []ReportMediaInput{
			{URL: "https://cdn.example.com/frame.jpg", Type: "IMAGE"},
		},
	}
}

func TestInspectionApprovePaysInspector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, sellerID, 500)
	item := f.item(400)

	req, err := f.inspections.RequestInspection(ctx, sellerID, item.ID, schedule())
	require.NoError(t, err)
	assert.Equal(t, int64(100), req.FeePoints)

	seller := f.wallet(t, sellerID)
	assert.Equal(t, int64(400), seller.AvailablePoints)
	assert.Equal(t, int64(100), seller.FrozenPoints)
	assert.Equal(t, models.ItemInspectionRequested, f.itemStatus(t, item.ID).InspectionStatus)

	_, err = f.inspections.RequestInspection(ctx, sellerID, item.ID, schedule())
	requireCode(t, err, apperr.CodeInvalidState)

	_, err = f.inspections.AssignInspector(ctx, req.ID, inspectorID)
	require.NoError(t, err)

	_, err = f.inspections.StartInspection(ctx, req.ID, buyerID)
	requireCode(t, err, apperr.CodeForbidden)

	started, err := f.inspections.StartInspection(ctx, req.ID, inspectorID)
	require.NoError(t, err)
	assert.NotNil(t, started.StartedAt)

	details, err := f.inspections.SubmitReport(ctx, req.ID, inspectorID, report())
	require.NoError(t, err)
	assert.Equal(t, models.InspectionStatusInspected, details.Request.Status)
	require.NotNil(t, details.Report)
	assert.Len(t, details.Report.Medias, 1)

	approved, err := f.inspections.AdminApproveInspection(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InspectionStatusApproved, approved.Status)

	seller = f.wallet(t, sellerID)
	assert.Equal(t, int64(400), seller.AvailablePoints)
	assert.Equal(t, int64(0), seller.FrozenPoints)
	assert.Equal(t, int64(80), f.wallet(t, inspectorID).AvailablePoints)

	stored := f.itemStatus(t, item.ID)
	assert.Equal(t, models.ItemInspectionApproved, stored.InspectionStatus)
	assert.Equal(t, models.ItemStatusVerified, stored.Status)

	got, err := f.inspections.GetInspection(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Report)
	assert.Equal(t, models.InspectionStatusApproved, got.Report.AdminDecision)
	f.assertConserved(t)
}

func TestInspectionRejectRefundsFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, sellerID, 500)
	item := f.item(400)

	req, err := f.inspections.RequestInspection(ctx, sellerID, item.ID, schedule())
	require.NoError(t, err)
	_, err = f.inspections.AssignInspector(ctx, req.ID, inspectorID)
	require.NoError(t, err)

	rejected, err := f.inspections.AdminRejectInspection(ctx, req.ID, "inspector unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.InspectionStatusRejected, rejected.Status)
	assert.Equal(t, "inspector unavailable", rejected.RejectionReason)

	seller := f.wallet(t, sellerID)
	assert.Equal(t, int64(500), seller.AvailablePoints)
	assert.Equal(t, int64(0), seller.FrozenPoints)
	assert.Equal(t, int64(0), f.wallet(t, inspectorID).AvailablePoints)
	assert.Equal(t, models.ItemInspectionRejected, f.itemStatus(t, item.ID).InspectionStatus)

	_, err = f.inspections.AdminApproveInspection(ctx, req.ID)
	requireCode(t, err, apperr.CodeInvalidState)
	_, err = f.inspections.AdminRejectInspection(ctx, req.ID, "again")
	requireCode(t, err, apperr.CodeInvalidState)
	f.assertConserved(t)
}

func TestRequestInspectionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, sellerID, 50)
	item := f.item(400)

	_, err := f.inspections.RequestInspection(ctx, buyerID, item.ID, schedule())
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.inspections.RequestInspection(ctx, sellerID, item.ID, InspectionSchedule{})
	requireCode(t, err, apperr.CodeValidation)

	_, err = f.inspections.RequestInspection(ctx, sellerID, item.ID, schedule())
	requireCode(t, err, apperr.CodeInsufficientBalance)

	reqs, err := f.inspections.ListInspections(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestSubmitReportValidation(t *testing.T) {
	f := newFixture(t)
	bad := report()
	bad.OverallScore = 101
	bad.Medias[0].Type = "AUDIO"

	_, err := f.inspections.SubmitReport(context.Background(), 1, inspectorID, bad)
	requireCode(t, err, apperr.CodeValidation)
	fields, ok := apperr.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "overall_score")
}

func TestAssignInspectorChecksInspector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, sellerID, 500)
	item := f.item(400)

	req, err := f.inspections.RequestInspection(ctx, sellerID, item.ID, schedule())
	require.NoError(t, err)

	_, err = f.inspections.AssignInspector(ctx, req.ID, 999)
	requireCode(t, err, apperr.CodeNotFound)

	_, err = f.inspections.AssignInspector(ctx, req.ID, sellerID)
	requireCode(t, err, apperr.CodeValidation)

	got, err := f.inspections.GetInspection(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InspectionStatusRequested, got.Request.Status)
	assert.Nil(t, got.Request.InspectorID)

	assigned, err := f.inspections.AssignInspector(ctx, req.ID, inspectorID)
	require.NoError(t, err)
	assert.Equal(t, models.InspectionStatusAssigned, assigned.Status)
}

func TestInspectionAuditTrail(t *testing.T) {
	const adminID = int64(9)
	f := newFixture(t)
	f.fund(t, sellerID, 500)
	item := f.item(400)

	asSeller := WithActor(context.Background(), sellerID)
	asAdmin := WithActor(context.Background(), adminID)
	asInspector := WithActor(context.Background(), inspectorID)

	req, err := f.inspections.RequestInspection(asSeller, sellerID, item.ID, schedule())
	require.NoError(t, err)
	_, err = f.inspections.AssignInspector(asAdmin, req.ID, inspectorID)
	require.NoError(t, err)
	_, err = f.inspections.StartInspection(asInspector, req.ID, inspectorID)
	require.NoError(t, err)
	_, err = f.inspections.SubmitReport(asInspector, req.ID, inspectorID, report())
	require.NoError(t, err)
	_, err = f.inspections.AdminApproveInspection(asAdmin, req.ID)
	require.NoError(t, err)

	history, err := f.history.List(context.Background(), "inspection", req.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, []string{"requested", "assigned", "started", "report_submitted", "approved"},
		f.actions(t, models.EntityInspection, req.ID))

	require.NotNil(t, history[0].PerformedBy)
	assert.Equal(t, sellerID, *history[0].PerformedBy)
	require.NotNil(t, history[3].PerformedBy)
	assert.Equal(t, inspectorID, *history[3].PerformedBy)
	require.NotNil(t, history[4].PerformedBy)
	assert.Equal(t, adminID, *history[4].PerformedBy)
	assert.JSONEq(t, `{"inspector_id":3,"inspector_share":80,"platform_fee":20}`, history[4].Metadata)

	assert.Equal(t, []string{"verified"}, f.actions(t, models.EntityItem, item.ID))

	_, err = f.history.List(context.Background(), "order", req.ID)
	requireCode(t, err, apperr.CodeValidation)
}

func TestFailedAssignLeavesNoHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, sellerID, 500)
	req, err := f.inspections.RequestInspection(ctx, sellerID, f.item(400).ID, schedule())
	require.NoError(t, err)

	_, err = f.inspections.AssignInspector(ctx, req.ID, 999)
	require.Error(t, err)

	history, err := f.history.List(ctx, models.EntityInspection, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].PerformedBy)
}
