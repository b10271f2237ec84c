package api

import (
	"net/http"
	"strings"

	"escrow-service/internal/service"

	"github.com/gin-gonic/gin"
)

type requestInspectionRequest struct {
	ItemID int64 `json:"item_id" binding:"required,gt=0"`
	service.InspectionSchedule
}

type assignRequest struct {
	InspectorID int64 `json:"inspector_id" binding:"required,gt=0"`
}

type resolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Note       string `json:"note"`
}

func (h *Handler) requestInspection(c *gin.Context) {
	var req requestInspectionRequest
	if !h.bind(c, &req) {
		return
	}
	inspection, err := h.inspections.RequestInspection(c.Request.Context(), callerID(c), req.ItemID, req.InspectionSchedule)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inspection)
}

func (h *Handler) getInspection(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	details, err := h.inspections.GetInspection(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) listInspections(c *gin.Context) {
	reqs, err := h.inspections.ListInspections(c.Request.Context(), strings.ToUpper(c.Query("status")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inspections": reqs})
}

func (h *Handler) assignInspector(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req assignRequest
	if !h.bind(c, &req) {
		return
	}
	inspection, err := h.inspections.AssignInspector(c.Request.Context(), id, req.InspectorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (h *Handler) startInspection(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inspection, err := h.inspections.StartInspection(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (h *Handler) submitReport(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req service.SubmitReportRequest
	if !h.bind(c, &req) {
		return
	}
	details, err := h.inspections.SubmitReport(c.Request.Context(), id, callerID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

func (h *Handler) approveInspection(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inspection, err := h.inspections.AdminApproveInspection(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (h *Handler) rejectInspection(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.bind(c, &req) {
		return
	}
	inspection, err := h.inspections.AdminRejectInspection(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (h *Handler) listDisputes(c *gin.Context) {
	disputes, err := h.disputes.ListDisputes(c.Request.Context(), strings.ToUpper(c.Query("status")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

func (h *Handler) investigateDispute(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	dispute, err := h.disputes.MarkInvestigating(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

func (h *Handler) resolveDispute(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if !h.bind(c, &req) {
		return
	}
	dispute, err := h.disputes.ResolveDispute(c.Request.Context(), id, req.Resolution, req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

func (h *Handler) listHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	history, err := h.history.List(c.Request.Context(), c.Param("entity"), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
