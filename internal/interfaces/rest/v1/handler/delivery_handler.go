package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
)

// DeliveryHandler is the HTTP surface external producers (the upload
// pipeline, admin jobs) use to reach connected clients. Delivery outcomes
// are reported as booleans, mirroring the registry's contract: no live
// target is not an error.
type DeliveryHandler struct {
	registry *registry.Registry
	logger   logger.Logger
}

func NewDeliveryHandler(reg *registry.Registry, log logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		registry: reg,
		logger:   log.WithField("handler", "delivery"),
	}
}

type BroadcastRequest struct {
	Channel string `json:"channel" binding:"required"`
	Message any    `json:"message" binding:"required"`
}

// SendNotification handles POST /api/v1/users/:userId/notifications.
func (h *DeliveryHandler) SendNotification(c *gin.Context) {
	userID := c.Param("userId")

	var notification map[string]any
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification payload",
		})
		return
	}

	delivered := h.registry.SendNotification(userID, notification)
	if !delivered {
		h.logger.Debugf("No live notifications connection for user %s", userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"delivered": delivered,
		"userId":    userID,
	})
}

// SendUploadProgress handles POST /api/v1/users/:userId/uploads/:uploadId/progress.
func (h *DeliveryHandler) SendUploadProgress(c *gin.Context) {
	userID := c.Param("userId")
	uploadID := c.Param("uploadId")

	var progress map[string]any
	if err := c.ShouldBindJSON(&progress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid progress payload",
		})
		return
	}

	delivered := h.registry.SendUploadProgress(userID, uploadID, progress)

	c.JSON(http.StatusOK, gin.H{
		"delivered": delivered,
		"userId":    userID,
		"uploadId":  uploadID,
	})
}

// Broadcast handles POST /api/v1/broadcast.
func (h *DeliveryHandler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid broadcast request",
		})
		return
	}

	h.registry.BroadcastToAll(req.Channel, req.Message)

	c.JSON(http.StatusOK, gin.H{
		"status":      "broadcasted",
		"channel":     req.Channel,
		"connections": h.registry.NotificationsCount(),
	})
}
