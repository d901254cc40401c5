package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photostream-realtime/internal/infrastructure/auth"
	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
	"photostream-realtime/internal/interfaces/rest/v1/handler"
	"photostream-realtime/internal/interfaces/websocket"
)

func InitRouter(reg *registry.Registry, verifier *auth.Verifier, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/realtime/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":                   "healthy",
			"registry_running":         reg.IsRunning(),
			"notification_connections": reg.NotificationsCount(),
			"upload_connections":       reg.UploadsCount(),
		})
	})

	// Producer-facing delivery API
	deliveryHandler := handler.NewDeliveryHandler(reg, log)
	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.POST("/users/:userId/notifications", deliveryHandler.SendNotification)
		apiGroup.POST("/users/:userId/uploads/:uploadId/progress", deliveryHandler.SendUploadProgress)
		apiGroup.POST("/broadcast", deliveryHandler.Broadcast)
	}

	websocket.InitWebSocketRouter(log, reg, verifier, rootGroup)

	return router
}
