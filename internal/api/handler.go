package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/auth"
	"escrow-service/internal/service"
	"escrow-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the settlement services the API exposes
type Services struct {
	Orders      *service.OrderService
	Disputes    *service.DisputeService
	Inspections *service.InspectionService
	Withdrawals *service.WithdrawalService
	Wallets     *service.WalletService
	Gateway     *service.GatewayService
	History     *service.HistoryService
}

// Handler contains HTTP handlers
type Handler struct {
	orders      *service.OrderService
	disputes    *service.DisputeService
	inspections *service.InspectionService
	withdrawals *service.WithdrawalService
	wallets     *service.WalletService
	gateway     *service.GatewayService
	history     *service.HistoryService
	readiness   []Pinger
	auth        config.AuthConfig
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. Every pinger must succeed for /ready.
func NewHandler(svc Services, authCfg config.AuthConfig, readiness ...Pinger) *Handler {
	return &Handler{
		orders:      svc.Orders,
		disputes:    svc.Disputes,
		inspections: svc.Inspections,
		withdrawals: svc.Withdrawals,
		wallets:     svc.Wallets,
		gateway:     svc.Gateway,
		history:     svc.History,
		readiness:   readiness,
		auth:        authCfg,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gateway := router.Group("/api/v1/payments/gateway")
	{
		gateway.GET("/return", h.gatewayReturn)
		gateway.GET("/ipn", h.gatewayIPN)
	}

	v1 := router.Group("/api/v1", h.authMiddleware())
	{
		v1.POST("/wallets", h.openWallet)
		v1.GET("/wallets/me", h.getMyWallet)
		v1.GET("/wallets/me/transactions", h.listMyTransactions)
		v1.GET("/wallets/me/deposit-url", h.depositURL)
		v1.POST("/wallets/me/withdrawals", h.requestWithdraw)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/history", h.getOrderHistory)
		v1.POST("/orders/:id/approve", h.approveOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/disputes", h.createDispute)

		v1.GET("/disputes/:id", h.getDispute)

		v1.POST("/inspections", h.requestInspection)
		v1.GET("/inspections/:id", h.getInspection)
	}

	inspector := v1.Group("/inspections", requireRole(auth.RoleInspector, auth.RoleAdmin))
	{
		inspector.POST("/:id/start", h.startInspection)
		inspector.POST("/:id/report", h.submitReport)
	}

	admin := v1.Group("/admin", requireRole(auth.RoleAdmin))
	{
		admin.GET("/inspections", h.listInspections)
		admin.POST("/inspections/:id/assign", h.assignInspector)
		admin.POST("/inspections/:id/approve", h.approveInspection)
		admin.POST("/inspections/:id/reject", h.rejectInspection)

		admin.GET("/disputes", h.listDisputes)
		admin.POST("/disputes/:id/investigate", h.investigateDispute)
		admin.POST("/disputes/:id/resolve", h.resolveDispute)

		admin.GET("/withdrawals", h.listWithdrawals)
		admin.POST("/withdrawals/:id/approve", h.approveWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.rejectWithdrawal)

		admin.POST("/deposits", h.manualDeposit)

		admin.GET("/history/:entity/:id", h.listHistory)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck fails while any dependency is unreachable
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bind decodes the JSON body into req, reporting malformed input as a validation error
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, apperr.Wrap(apperr.CodeValidation, err, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperr.Validation("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// queryList splits a comma separated query parameter, upper-casing each value
func queryList(c *gin.Context, key string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
