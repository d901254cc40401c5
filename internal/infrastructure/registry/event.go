package registry

import "time"

// Event types carried in the "type" field of every outbound frame.
const (
	EventConnectionEstablished = "connection_established"
	EventNotification          = "notification"
	EventProgressUpdate        = "progress_update"
	EventBroadcast             = "broadcast"
	EventSubscriptionSuccess   = "subscription_success"
	EventAcknowledgeSuccess    = "acknowledge_success"
	EventCancelAcknowledged    = "cancel_acknowledged"
	EventPauseAcknowledged     = "pause_acknowledged"
	EventResumeAcknowledged    = "resume_acknowledged"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Event is a single outbound frame. Field names are fixed by the client
// protocol; human-readable message strings are delivered verbatim to the
// client, so they stay in the product's UI language.
type Event struct {
	Type           string    `json:"type"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	UploadID       string    `json:"uploadId,omitempty"`
	NotificationID string    `json:"notificationId,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Channels       any       `json:"channels,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NotificationsEstablished(userID string) *Event {
	return &Event{
		Type:      EventConnectionEstablished,
		Message:   "通知服务连接已建立",
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func UploadProgressEstablished(userID, uploadID string) *Event {
	return &Event{
		Type:      EventConnectionEstablished,
		Message:   "上传进度服务连接已建立",
		UserID:    userID,
		UploadID:  uploadID,
		Timestamp: time.Now(),
	}
}

func NotificationEvent(data any) *Event {
	return &Event{
		Type:      EventNotification,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ProgressUpdateEvent(uploadID string, data any) *Event {
	return &Event{
		Type:      EventProgressUpdate,
		UploadID:  uploadID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func BroadcastEvent(channel string, data any) *Event {
	return &Event{
		Type:      EventBroadcast,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func SubscriptionSuccess(channels any) *Event {
	return &Event{
		Type:      EventSubscriptionSuccess,
		Message:   "成功订阅通知频道",
		Channels:  channels,
		Timestamp: time.Now(),
	}
}

func AcknowledgeSuccess(notificationID string) *Event {
	return &Event{
		Type:           EventAcknowledgeSuccess,
		NotificationID: notificationID,
		Timestamp:      time.Now(),
	}
}

// ActionAcknowledged answers the upload-channel control actions
// (cancel/pause/resume); the upload pipeline owns the actual side effects.
func ActionAcknowledged(eventType, uploadID, message string) *Event {
	return &Event{
		Type:      eventType,
		Message:   message,
		UploadID:  uploadID,
		Timestamp: time.Now(),
	}
}

func Pong() *Event {
	return &Event{
		Type:      EventPong,
		Timestamp: time.Now(),
	}
}

func ErrorEvent(errText, message string) *Event {
	return &Event{
		Type:      EventError,
		Error:     errText,
		Message:   message,
		Timestamp: time.Now(),
	}
}
