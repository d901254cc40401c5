package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"photostream-realtime/internal/infrastructure/auth"
	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
)

// Application close codes, distinguishable from the standard 1xxx range.
const (
	CloseUnauthorized    = 4401
	CloseUnknownEndpoint = 4404
)

// Handler upgrades incoming connections, authenticates the handshake and
// routes to the channel-kind handler.
type Handler struct {
	registry *registry.Registry
	verifier *auth.Verifier
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(reg *registry.Registry, verifier *auth.Verifier, log logger.Logger) *Handler {
	return &Handler{
		registry: reg,
		verifier: verifier,
		logger:   log.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The handshake token is the access control; origin is not.
				return true
			},
		},
	}
}

// Connect serves GET /ws/:endpoint. Authentication happens after the
// upgrade so failures can be reported with an error frame and an
// application close code instead of a bare HTTP status.
func (h *Handler) Connect(c *gin.Context) {
	endpoint := c.Param("endpoint")

	if !h.registry.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	identity, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		h.logger.Warnf("Handshake authentication failed on %s: %v", endpoint, err)
		h.reject(conn, "未授权", CloseUnauthorized)
		return
	}

	switch endpoint {
	case "notifications":
		h.handleNotifications(conn, identity)
	case "upload-progress":
		h.handleUploadProgress(conn, identity, c.Query("uploadId"))
	default:
		h.logger.Warnf("Unknown websocket endpoint %q requested by user %s", endpoint, identity.UserID)
		h.reject(conn, "未知端点", CloseUnknownEndpoint)
	}
}

func (h *Handler) handleNotifications(conn *websocket.Conn, identity *auth.Identity) {
	meta := registry.Meta{
		UserID: identity.UserID,
		Role:   identity.Role,
		Kind:   registry.KindNotifications,
	}
	wsConn := registry.NewWebSocketConnection(meta, conn, h.dispatchNotifications, h.logger)

	h.registry.RegisterNotifications(wsConn)
	wsConn.Send(registry.NotificationsEstablished(identity.UserID))

	h.logger.Infof("User %s connected on notifications channel", identity.UserID)

	<-wsConn.Context().Done()
	h.registry.UnregisterNotifications(wsConn)
}

func (h *Handler) handleUploadProgress(conn *websocket.Conn, identity *auth.Identity, uploadID string) {
	if uploadID == "" {
		h.logger.Warnf("Upload-progress connection from user %s missing uploadId", identity.UserID)
		h.reject(conn, "缺少uploadId参数", websocket.ClosePolicyViolation)
		return
	}

	meta := registry.Meta{
		UserID:   identity.UserID,
		Role:     identity.Role,
		Kind:     registry.KindUploadProgress,
		UploadID: uploadID,
	}
	wsConn := registry.NewWebSocketConnection(meta, conn, h.dispatchUploadProgress, h.logger)

	h.registry.RegisterUpload(wsConn)
	wsConn.Send(registry.UploadProgressEstablished(identity.UserID, uploadID))

	h.logger.Infof("User %s connected on upload-progress channel for upload %s", identity.UserID, uploadID)

	<-wsConn.Context().Done()
	h.registry.UnregisterUpload(wsConn)
}

// reject sends an error frame followed by a close frame with the given code.
// No registry entry exists at this point.
func (h *Handler) reject(conn *websocket.Conn, message string, code int) {
	deadline := time.Now().Add(5 * time.Second)

	conn.SetWriteDeadline(deadline)
	conn.WriteJSON(registry.ErrorEvent(message, ""))
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, message),
		deadline,
	)
	conn.Close()
}
