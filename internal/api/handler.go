package api

import (
	"net/http"
	"time"

	"fulfillment-service/internal/auth"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	fulfillment *service.FulfillmentService
	ratings     *service.RatingService
	chat        *service.ChatService
	jwtService  *auth.JWTService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	fulfillment *service.FulfillmentService,
	ratings *service.RatingService,
	chat *service.ChatService,
	jwtService *auth.JWTService,
) *Handler {
	return &Handler{
		fulfillment: fulfillment,
		ratings:     ratings,
		chat:        chat,
		jwtService:  jwtService,
	}
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
	v1.Use(AuthMiddleware(h.jwtService))
	{
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/step1", h.submitStep1)
		v1.POST("/orders/:id/step2", h.submitStep2)
		v1.POST("/orders/:id/step3", h.submitStep3)
		v1.POST("/orders/:id/rating", h.submitRating)
		v1.GET("/orders/:id/rating", h.getRating)
		v1.GET("/orders/:id/chat", h.listChat)
		v1.POST("/orders/:id/chat", h.appendChat)
		v1.GET("/users/:id/reputation", h.getReputation)

		admin := v1.Group("")
		admin.Use(AdminOnly())
		{
			admin.POST("/orders", h.createOrder)
			admin.POST("/orders/:id/cancel", h.cancelOrder)
			admin.DELETE("/orders/:id", h.deleteOrder)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps the domain error taxonomy onto HTTP status codes:
// validation 400, role 403, state 409, not-found 404. Anything else is a
// 500 with a generic message.
func respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	message := "internal error"

	switch kind {
	case models.KindValidation:
		status = http.StatusBadRequest
		message = err.Error()
	case models.KindRole:
		status = http.StatusForbidden
		message = err.Error()
	case models.KindState:
		status = http.StatusConflict
		message = err.Error()
	case models.KindNotFound:
		status = http.StatusNotFound
		message = err.Error()
	}

	body := gin.H{"error": message}
	if kind != "" {
		body["kind"] = kind
	}
	c.JSON(status, body)
}

// createOrder opens a fulfillment order manually (admin backfill; the
// normal path is the auction-closed consumer).
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindValidation})
		return
	}

	order, err := h.fulfillment.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order.View())
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.fulfillment.ListOrders(c.Request.Context(), currentActor(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]*models.OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, orders[i].View())
	}
	c.JSON(http.StatusOK, gin.H{"orders": views})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.fulfillment.GetOrder(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

func (h *Handler) submitStep1(c *gin.Context) {
	var req service.Step1Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindValidation})
		return
	}

	order, err := h.fulfillment.SubmitStep1(c.Request.Context(), currentActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

func (h *Handler) submitStep2(c *gin.Context) {
	var req service.Step2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindValidation})
		return
	}

	order, err := h.fulfillment.SubmitStep2(c.Request.Context(), currentActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

// submitStep3 confirms receipt; the request carries no body.
func (h *Handler) submitStep3(c *gin.Context) {
	order, err := h.fulfillment.SubmitStep3(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

func (h *Handler) submitRating(c *gin.Context) {
	var req service.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindValidation})
		return
	}

	order, err := h.ratings.SubmitRating(c.Request.Context(), currentActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

// getRating returns one side's rating; null when that side has not rated.
func (h *Handler) getRating(c *gin.Context) {
	role := models.PartyRole(c.Query("role"))
	if role != models.PartyBuyer && role != models.PartySeller {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "role must be buyer or seller",
			"kind":  models.KindValidation,
		})
		return
	}

	rating, err := h.ratings.GetRating(c.Request.Context(), currentActor(c), c.Param("id"), role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": rating})
}

// listChat returns the chat log; ?recent=true serves the cached tail.
func (h *Handler) listChat(c *gin.Context) {
	var messages []models.ChatMessage
	var err error
	if c.Query("recent") == "true" {
		messages, err = h.chat.ListRecentMessages(c.Request.Context(), currentActor(c), c.Param("id"))
	} else {
		messages, err = h.chat.ListMessages(c.Request.Context(), currentActor(c), c.Param("id"))
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type appendChatRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) appendChat(c *gin.Context) {
	var req appendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindValidation})
		return
	}

	msg, err := h.chat.AppendMessage(c.Request.Context(), currentActor(c), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) getReputation(c *gin.Context) {
	rep, err := h.ratings.GetUserReputation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.fulfillment.CancelOrder(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.View())
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.fulfillment.DeleteOrder(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
