package domain

import "encoding/json"

// Inbound events sent by a client over its connection.
const (
	EventAuthenticate        = "authenticate"
	EventMarkAsRead          = "mark_as_read"
	EventMarkMultipleAsRead  = "mark_multiple_as_read"
	EventMarkAllAsRead       = "mark_all_as_read"
	EventDeleteNotification  = "delete_notification"
	EventDeleteMultiple      = "delete_multiple_notifications"
	EventDeleteAll           = "delete_all_notifications"
	EventGetNotifications    = "get_notifications"
	EventSearchNotifications = "search_notifications"
	EventGetStats            = "get_stats"
	EventPing                = "ping"
)

// Outbound events pushed by the server.
const (
	EventAuthenticated        = "authenticated"
	EventAuthenticationError  = "authentication_error"
	EventNewNotification      = "new_notification"
	EventNotificationUpdated  = "notification_updated"
	EventNotificationsUpdated = "notifications_updated"
	EventNotificationDeleted  = "notification_deleted"
	EventNotificationStats    = "notification_stats"
	EventUnreadNotifications  = "unread_notifications"
	EventNotificationsList    = "notifications_list"
	EventSearchResults        = "search_results"
	EventError                = "error"
	EventPong                 = "pong"
	EventSystem               = "system"
)

// Values of the "type" field on update events.
const (
	UpdateMarkedAsRead         = "marked_as_read"
	UpdateMarkedMultipleAsRead = "marked_multiple_as_read"
	UpdateMarkedAllAsRead      = "marked_all_as_read"
	UpdateDeletedMultiple      = "deleted_multiple"
	UpdateDeletedAll           = "deleted_all"
)

type AuthenticatedPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

type AuthenticationErrorPayload struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NotificationPayload struct {
	Notification *Notification `json:"notification"`
}

type NotificationUpdatedPayload struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification"`
}

type NotificationsUpdatedPayload struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type NotificationDeletedPayload struct {
	NotificationID string        `json:"notificationId"`
	Notification   *Notification `json:"notification,omitempty"`
}

type NotificationListPayload struct {
	Count         int            `json:"count"`
	Notifications []Notification `json:"notifications"`
}

// SystemPayload announces server-side conditions such as shutdown.
type SystemPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals payload under the given event name.
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: event, Data: data})
}
