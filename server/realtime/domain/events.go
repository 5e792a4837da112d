package domain

import "time"

// Outbound push event names. Room-scoped events travel on the room stream;
// new_notification and unread_count target a single user's connections;
// user_online/user_offline are broadcast.
const (
	EventMessageCreated  = "message.created"
	EventMessageDeleted  = "message.deleted"
	EventMessageRead     = "message.read"
	EventMessagePinned   = "message.pinned"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventNewNotification = "new_notification"
	EventUnreadCount     = "unread_count"
	EventUserOnline      = "user_online"
	EventUserOffline     = "user_offline"
	EventTyping          = "typing"
	EventStopTyping      = "stop_typing"
)

type MessageDeletedEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

type MessageReadEvent struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type MessagePinnedEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	Pinned    bool   `json:"pinned"`
}

type ReactionEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type UnreadCountEvent struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

type PresenceEvent struct {
	UserID string `json:"user_id"`
}

type TypingEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}
