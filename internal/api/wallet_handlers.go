package api

import (
	"net/http"
	"strconv"

	"escrow-service/internal/apperr"
	"escrow-service/internal/service"

	"github.com/gin-gonic/gin"
)

type withdrawRequest struct {
	Amount int64 `json:"amount"`
	service.BankDetails
}

type manualDepositRequest struct {
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	ReferenceID string `json:"reference_id" binding:"required"`
}

func (h *Handler) openWallet(c *gin.Context) {
	wallet, err := h.wallets.OpenWallet(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) getMyWallet(c *gin.Context) {
	wallet, err := h.wallets.GetWallet(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) listMyTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := h.wallets.ListTransactions(c.Request.Context(), callerID(c), queryList(c, "type"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) depositURL(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		h.respondError(c, apperr.Validation("amount must be a whole number"))
		return
	}
	paymentURL, err := h.gateway.PaymentURL(callerID(c), amount, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_url": paymentURL})
}

func (h *Handler) requestWithdraw(c *gin.Context) {
	var req withdrawRequest
	if !h.bind(c, &req) {
		return
	}
	tx, err := h.withdrawals.RequestWithdraw(c.Request.Context(), callerID(c), req.Amount, req.BankDetails)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) listWithdrawals(c *gin.Context) {
	txs, err := h.withdrawals.ListWithdrawals(c.Request.Context(), queryList(c, "status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": txs})
}

func (h *Handler) approveWithdrawal(c *gin.Context) {
	txID, ok := h.pathID(c)
	if !ok {
		return
	}
	tx, err := h.withdrawals.ApproveWithdrawal(c.Request.Context(), txID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) rejectWithdrawal(c *gin.Context) {
	txID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.bind(c, &req) {
		return
	}
	tx, err := h.withdrawals.RejectWithdrawal(c.Request.Context(), txID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) manualDeposit(c *gin.Context) {
	var req manualDepositRequest
	if !h.bind(c, &req) {
		return
	}
	tx, err := h.wallets.Deposit(c.Request.Context(), req.UserID, req.Amount, req.ReferenceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// gatewayParams flattens the callback query, keeping the first value per key
func gatewayParams(c *gin.Context) map[string]string {
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// gatewayReturn handles the browser redirect after payment
func (h *Handler) gatewayReturn(c *gin.Context) {
	res, err := h.gateway.HandleCallback(c.Request.Context(), gatewayParams(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	switch res.RspCode {
	case service.RspInvalidSignature, service.RspInvalidTmnCode, service.RspOrderNotFound, service.RspMissingReference:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"success": res.Success(),
		"message": res.Message,
		"code":    res.RspCode,
		"applied": res.Applied,
	})
}

// gatewayIPN acknowledges the server-to-server notification in the gateway's format
func (h *Handler) gatewayIPN(c *gin.Context) {
	res, _ := h.gateway.HandleCallback(c.Request.Context(), gatewayParams(c))
	c.String(http.StatusOK, res.IPNBody())
}
