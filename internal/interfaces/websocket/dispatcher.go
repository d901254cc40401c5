package websocket

import (
	"encoding/json"
	"fmt"

	"photostream-realtime/internal/infrastructure/registry"
)

// Inbound frames are decoded into a generic map rather than a typed struct:
// the protocol distinguishes "not JSON at all" (malformed-message error)
// from "recognized JSON with a wrong or missing field" (per-action error),
// and typed unmarshalling would collapse the two.
func decodeFrame(conn registry.Connection, frame []byte) (map[string]any, bool) {
	var msg map[string]any
	if err := json.Unmarshal(frame, &msg); err != nil || msg == nil {
		conn.Send(registry.ErrorEvent("无效的消息格式", "消息必须是有效的JSON格式"))
		return nil, false
	}
	return msg, true
}

func unsupportedAction(conn registry.Connection, action string) {
	conn.Send(registry.ErrorEvent("未知操作", fmt.Sprintf("不支持的操作: %s", action)))
}

// dispatchNotifications handles inbound frames on a notifications
// connection. Nothing here is fatal: every failure is answered with an
// error frame and the connection stays open.
func (h *Handler) dispatchNotifications(conn registry.Connection, frame []byte) {
	msg, ok := decodeFrame(conn, frame)
	if !ok {
		return
	}

	action, _ := msg["action"].(string)
	switch action {
	case "subscribe":
		// Channel-membership bookkeeping is layered on elsewhere; the
		// contract here is validation and acknowledgment.
		channels, ok := msg["channels"].([]any)
		if !ok {
			conn.Send(registry.ErrorEvent("无效的订阅请求", "缺少channels字段或格式不正确"))
			return
		}
		conn.Send(registry.SubscriptionSuccess(channels))

	case "acknowledge":
		notificationID, _ := msg["notificationId"].(string)
		if notificationID == "" {
			conn.Send(registry.ErrorEvent("无效的确认请求", "缺少notificationId字段"))
			return
		}
		conn.Send(registry.AcknowledgeSuccess(notificationID))

	case "ping":
		conn.Send(registry.Pong())

	default:
		unsupportedAction(conn, action)
	}
}

// dispatchUploadProgress handles inbound frames on an upload-progress
// connection. The control actions are acknowledged unconditionally; their
// side effects on the upload belong to the upload pipeline.
func (h *Handler) dispatchUploadProgress(conn registry.Connection, frame []byte) {
	msg, ok := decodeFrame(conn, frame)
	if !ok {
		return
	}

	action, _ := msg["action"].(string)
	switch action {
	case "cancel":
		conn.Send(registry.ActionAcknowledged(
			registry.EventCancelAcknowledged, conn.UploadID(), "上传取消请求已接收"))

	case "pause":
		conn.Send(registry.ActionAcknowledged(
			registry.EventPauseAcknowledged, conn.UploadID(), "上传暂停请求已接收"))

	case "resume":
		conn.Send(registry.ActionAcknowledged(
			registry.EventResumeAcknowledged, conn.UploadID(), "上传恢复请求已接收"))

	case "ping":
		conn.Send(registry.Pong())

	default:
		unsupportedAction(conn, action)
	}
}
