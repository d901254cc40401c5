package websocket

import (
	"github.com/gin-gonic/gin"

	"photostream-realtime/internal/infrastructure/auth"
	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
)

// InitWebSocketRouter mounts the realtime endpoints. A single wildcard
// route keeps endpoint dispatch (and the 4404 contract for unknown names)
// in the handler.
func InitWebSocketRouter(
	log logger.Logger,
	reg *registry.Registry,
	verifier *auth.Verifier,
	rg *gin.RouterGroup,
) {
	h := NewHandler(reg, verifier, log)

	wsGroup := rg.Group("/ws")
	wsGroup.GET("/:endpoint", h.Connect)
}
