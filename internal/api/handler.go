package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"table-service/internal/broker"
	"table-service/internal/models"
	"table-service/internal/service"
	"table-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	subscriberBuffer = 64
	heartbeatPeriod  = 15 * time.Second
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	tableService   *service.TableService
	orderService   *service.OrderService
	paymentService *service.PaymentService
	hub            *broker.Hub
	jwtSecret      string
	checks         map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tableService *service.TableService,
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	hub *broker.Hub,
	jwtSecret string,
) *Handler {
	return &Handler{
		tableService:   tableService,
		orderService:   orderService,
		paymentService: paymentService,
		hub:            hub,
		jwtSecret:      jwtSecret,
		checks:         make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tables/:number/devices", h.connectDevice)
		v1.DELETE("/tables/:number/devices/:deviceId", h.disconnectDevice)
		v1.GET("/tables/:number", h.getTable)
		v1.GET("/tables/:number/events", h.tableEvents)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/payment", h.submitPayment)
	}

	admin := v1.Group("/admin", AdminAuth(h.jwtSecret))
	{
		admin.POST("/tables", h.createTable)
		admin.GET("/tables", h.listTables)
		admin.POST("/tables/:id/close", h.closeTable)
		admin.PUT("/orders/:id/state", h.updateOrderState)
		admin.POST("/orders/:id/payment/confirm", h.confirmPayment)
		admin.POST("/orders/:id/payment/reject", h.rejectPayment)
		admin.GET("/events", h.adminEvents)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not_ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps the service error taxonomy to HTTP status codes
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func tableNumberParam(c *gin.Context) (int, bool) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid table number"})
		return 0, false
	}
	return number, true
}

// connectDevice handles a device joining a table
func (h *Handler) connectDevice(c *gin.Context) {
	number, ok := tableNumberParam(c)
	if !ok {
		return
	}

	var req service.ConnectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	req.TableNumber = number

	resp, err := h.tableService.ConnectDevice(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// disconnectDevice handles a device leaving a table
func (h *Handler) disconnectDevice(c *gin.Context) {
	number, ok := tableNumberParam(c)
	if !ok {
		return
	}

	table, err := h.tableService.DisconnectDevice(c.Request.Context(), number, c.Param("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, table)
}

// getTable returns the table snapshot observers reconcile against
func (h *Handler) getTable(c *gin.Context) {
	number, ok := tableNumberParam(c)
	if !ok {
		return
	}

	snapshot, err := h.tableService.GetTable(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// tableEvents streams one table's events
func (h *Handler) tableEvents(c *gin.Context) {
	number, ok := tableNumberParam(c)
	if !ok {
		return
	}

	if _, err := h.tableService.GetTable(c.Request.Context(), number); err != nil {
		writeError(c, err)
		return
	}

	h.stream(c, models.TableTopic(number), models.EventTypeTableReleased)
}

// adminEvents streams every event of every table
func (h *Handler) adminEvents(c *gin.Context) {
	h.stream(c, models.AdminTopic, "")
}

// stream forwards topic events as SSE. The stream ends after an event of
// type last has been sent.
func (h *Handler) stream(c *gin.Context, topic, last string) {
	sub := h.hub.Subscribe(topic, subscriberBuffer)
	defer sub.Close()

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return event.EventType != last
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().Unix()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// cancelOrder handles a device cancelling its order
func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// submitPayment handles a payment attempt
func (h *Handler) submitPayment(c *gin.Context) {
	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.paymentService.SubmitPayment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, order)
}

type createTableRequest struct {
	Number int `json:"number" binding:"required"`
}

// createTable registers a table
func (h *Handler) createTable(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	table, err := h.tableService.CreateTable(c.Request.Context(), req.Number)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, table)
}

// listTables returns every table
func (h *Handler) listTables(c *gin.Context) {
	tables, err := h.tableService.ListTables(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// closeTable force-releases a table
func (h *Handler) closeTable(c *gin.Context) {
	table, err := h.tableService.CloseTable(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, table)
}

type updateOrderStateRequest struct {
	State models.OrderState `json:"state" binding:"required"`
}

// updateOrderState moves an order along the kitchen lifecycle
func (h *Handler) updateOrderState(c *gin.Context) {
	var req updateOrderStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.UpdateOrderState(c.Request.Context(), c.Param("id"), req.State)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// confirmPayment marks an order paid
func (h *Handler) confirmPayment(c *gin.Context) {
	order, err := h.paymentService.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type rejectPaymentRequest struct {
	Reason string `json:"reason"`
}

// rejectPayment turns down an in-flight payment
func (h *Handler) rejectPayment(c *gin.Context) {
	var req rejectPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	order, err := h.paymentService.RejectPayment(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
