package store

import (
	"context"
	"fmt"

	"escrow-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertInspection creates a new inspection request
func (q *queries) InsertInspection(ctx context.Context, req *models.InspectionRequest) error {
	query := `
		INSERT INTO inspection_requests (
			item_id, requester_id, inspector_id, status, fee_points,
			preferred_date, preferred_time_slot, address, contact_phone, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, req, query,
		req.ItemID, req.RequesterID, req.InspectorID, req.Status, req.FeePoints,
		req.PreferredDate, req.PreferredTimeSlot, req.Address, req.ContactPhone, req.Notes)
}

// GetInspection retrieves an inspection request by ID
func (q *queries) GetInspection(ctx context.Context, id int64) (*models.InspectionRequest, error) {
	var req models.InspectionRequest
	if err := q.get(ctx, &req, fmt.Sprintf("inspection %d", id),
		"SELECT * FROM inspection_requests WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// LockInspection retrieves an inspection request FOR UPDATE
func (q *queries) LockInspection(ctx context.Context, id int64) (*models.InspectionRequest, error) {
	var req models.InspectionRequest
	if err := q.get(ctx, &req, fmt.Sprintf("inspection %d", id),
		"SELECT * FROM inspection_requests WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateInspection persists status, assignment and timestamps
func (q *queries) UpdateInspection(ctx context.Context, req *models.InspectionRequest) error {
	query := `
		UPDATE inspection_requests
		SET inspector_id = $1, status = $2, rejection_reason = $3,
			started_at = $4, completed_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	return q.get(ctx, req, fmt.Sprintf("inspection %d", req.ID), query,
		req.InspectorID, req.Status, req.RejectionReason, req.StartedAt, req.CompletedAt, req.ID)
}

// ListInspections returns requests in the given status, or all when status is empty
func (q *queries) ListInspections(ctx context.Context, status string) ([]models.InspectionRequest, error) {
	var reqs []models.InspectionRequest
	var err error
	if status == "" {
		err = sqlx.SelectContext(ctx, q.ext, &reqs,
			"SELECT * FROM inspection_requests ORDER BY created_at DESC")
	} else {
		err = sqlx.SelectContext(ctx, q.ext, &reqs,
			"SELECT * FROM inspection_requests WHERE status = $1 ORDER BY created_at DESC", status)
	}
	return reqs, err
}

// InsertInspectionReport stores the report and its media in order
func (q *queries) InsertInspectionReport(ctx context.Context, report *models.InspectionReport) error {
	query := `
		INSERT INTO inspection_reports (
			request_id, frame_condition, groupset_condition, wheel_condition,
			overall_score, comments, admin_decision
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.ext, report, query,
		report.RequestID, report.FrameCondition, report.GroupsetCondition, report.WheelCondition,
		report.OverallScore, report.Comments, report.AdminDecision)
	if err != nil {
		return wrapWriteErr(err)
	}

	for i := range report.Medias {
		media := &report.Medias[i]
		media.ReportID = report.ID
		if err := sqlx.GetContext(ctx, q.ext, &media.ID, `
			INSERT INTO report_medias (report_id, url, type, sort_order)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			media.ReportID, media.URL, media.Type, media.SortOrder); err != nil {
			return fmt.Errorf("failed to insert report media: %w", err)
		}
	}
	return nil
}

// GetInspectionReportByRequest loads a report with its media
func (q *queries) GetInspectionReportByRequest(ctx context.Context, requestID int64) (*models.InspectionReport, error) {
	var report models.InspectionReport
	if err := q.get(ctx, &report, fmt.Sprintf("report for inspection %d", requestID),
		"SELECT * FROM inspection_reports WHERE request_id = $1", requestID); err != nil {
		return nil, err
	}

	if err := sqlx.SelectContext(ctx, q.ext, &report.Medias,
		"SELECT * FROM report_medias WHERE report_id = $1 ORDER BY sort_order, id", report.ID); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateInspectionReportDecision records the admin's verdict on a report
func (q *queries) UpdateInspectionReportDecision(ctx context.Context, reportID int64, decision string) error {
	return q.exec(ctx, fmt.Sprintf("report %d", reportID),
		"UPDATE inspection_reports SET admin_decision = $1 WHERE id = $2", decision, reportID)
}
