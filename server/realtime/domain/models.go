package domain

import "time"

type NotificationType string

const (
	NotificationFollow          NotificationType = "follow"
	NotificationMessageReceived NotificationType = "message_received"
	NotificationReaction        NotificationType = "reaction"
	NotificationMention         NotificationType = "mention"
	NotificationPostPublished   NotificationType = "post_published"
)

type PostStatus string

const (
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
)

type Message struct {
	ID            string          `json:"id"`
	RoomID        string          `json:"room_id"`
	SenderID      string          `json:"sender_id"`
	Body          string          `json:"body"`
	AttachmentURL *string         `json:"attachment_url,omitempty"`
	Pinned        bool            `json:"pinned"`
	CreatedAt     time.Time       `json:"created_at"`
	Reactions     []ReactionGroup `json:"reactions,omitempty"`
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup is the per-emoji aggregate computed on read; counts are
// never stored on the message row.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int64    `json:"count"`
	Users []string `json:"users"`
}

type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	RelatedID   *string          `json:"related_id,omitempty"`
	ActionURL   *string          `json:"action_url,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationPreference holds one row per user. Absent rows are created
// lazily with every flag true, guarded by the unique constraint on user_id.
type NotificationPreference struct {
	UserID                string    `json:"user_id"`
	FollowNotifications   bool      `json:"follow_notifications"`
	MessageNotifications  bool      `json:"message_notifications"`
	ReactionNotifications bool      `json:"reaction_notifications"`
	MentionNotifications  bool      `json:"mention_notifications"`
	PostNotifications     bool      `json:"post_notifications"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:                userID,
		FollowNotifications:   true,
		MessageNotifications:  true,
		ReactionNotifications: true,
		MentionNotifications:  true,
		PostNotifications:     true,
	}
}

// Allows maps a notification type to its preference flag. Unknown types are
// rejected by the gate before this is consulted.
func (p NotificationPreference) Allows(t NotificationType) bool {
	switch t {
	case NotificationFollow:
		return p.FollowNotifications
	case NotificationMessageReceived:
		return p.MessageNotifications
	case NotificationReaction:
		return p.ReactionNotifications
	case NotificationMention:
		return p.MentionNotifications
	case NotificationPostPublished:
		return p.PostNotifications
	default:
		return false
	}
}

func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotificationFollow, NotificationMessageReceived, NotificationReaction,
		NotificationMention, NotificationPostPublished:
		return true
	}
	return false
}

type ScheduledPost struct {
	ID          string     `json:"id"`
	AuthorID    string     `json:"author_id"`
	Body        string     `json:"body"`
	Status      PostStatus `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Activity struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Report is the auto-created record for a content-policy match on send.
type Report struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	RoomID         string    `json:"room_id"`
	SenderID       string    `json:"sender_id"`
	MatchedKeyword string    `json:"matched_keyword"`
	CreatedAt      time.Time `json:"created_at"`
}

type SweepResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
}
