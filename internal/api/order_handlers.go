package api

import (
	"net/http"

	"escrow-service/internal/apperr"
	"escrow-service/internal/models"
	"escrow-service/internal/service"

	"github.com/gin-gonic/gin"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !h.bind(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), callerID(c), req.ItemID, req.IdempotencyKey)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// loadOrder fetches an order the caller is a party to
func (h *Handler) loadOrder(c *gin.Context) (*models.Order, bool) {
	orderID, ok := h.pathID(c)
	if !ok {
		return nil, false
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	caller := callerID(c)
	if caller != order.BuyerID && caller != order.SellerID && !callerIsAdmin(c) {
		h.respondError(c, apperr.Forbidden("not a party to order %d", orderID))
		return nil, false
	}
	return order, true
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderHistory(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	history, err := h.orders.ListOrderHistory(c.Request.Context(), order.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "history": history})
}

func (h *Handler) approveOrder(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.ApproveOrder(c.Request.Context(), orderID, callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, callerID(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) createDispute(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.bind(c, &req) {
		return
	}
	dispute, err := h.disputes.CreateDispute(c.Request.Context(), callerID(c), orderID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

func (h *Handler) getDispute(c *gin.Context) {
	disputeID, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	dispute, err := h.disputes.GetDispute(ctx, disputeID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !callerIsAdmin(c) {
		order, err := h.orders.GetOrder(ctx, dispute.OrderID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if caller := callerID(c); caller != order.BuyerID && caller != order.SellerID {
			h.respondError(c, apperr.Forbidden("not a party to dispute %d", disputeID))
			return
		}
	}
	c.JSON(http.StatusOK, dispute)
}
