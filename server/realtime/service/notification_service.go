package service

import (
	"context"
	"fmt"
	"strings"

	commonlog "social_server/server/common/log"
	"social_server/server/realtime/domain"
)

type notificationStore interface {
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) error
	Delete(ctx context.Context, notificationID, recipientID string) error
}

type preferenceStore interface {
	GetOrCreate(ctx context.Context, userID string) (domain.NotificationPreference, error)
	Update(ctx context.Context, p domain.NotificationPreference) (domain.NotificationPreference, error)
}

// NotificationService is the gate every outbound notification passes
// through: it checks the recipient's stored preference flags before any
// write or push happens.
type NotificationService struct {
	store notificationStore
	prefs preferenceStore
	hub   Pusher
}

func NewNotificationService(store notificationStore, prefs preferenceStore, hub Pusher) *NotificationService {
	return &NotificationService{store: store, prefs: prefs, hub: hub}
}

// Notify persists and pushes a notification unless the recipient's flag
// for the type is explicitly false, in which case nothing is written and
// suppressed=true. Push failures never roll back the persisted row; the
// notification stays queryable for the next fetch.
func (s *NotificationService) Notify(ctx context.Context, recipientID string, t domain.NotificationType, title, message string, relatedID *string) (domain.Notification, bool, error) {
	if strings.TrimSpace(recipientID) == "" || strings.TrimSpace(title) == "" {
		return domain.Notification{}, false, fmt.Errorf("%w: recipient_id and title are required", domain.ErrValidation)
	}
	if !domain.ValidNotificationType(t) {
		return domain.Notification{}, false, fmt.Errorf("%w: unknown notification type %q", domain.ErrValidation, t)
	}

	pref, err := s.prefs.GetOrCreate(ctx, recipientID)
	if err != nil {
		return domain.Notification{}, false, err
	}
	if !pref.Allows(t) {
		commonlog.Debugf("event=notification action=notify status=suppressed recipient_id=%s type=%s", recipientID, t)
		return domain.Notification{}, true, nil
	}

	created, err := s.store.Create(ctx, domain.Notification{
		RecipientID: recipientID,
		Type:        t,
		Title:       title,
		Message:     message,
		RelatedID:   relatedID,
	})
	if err != nil {
		return domain.Notification{}, false, err
	}
	commonlog.Infof("event=notification action=notify status=ok recipient_id=%s type=%s notification_id=%s", recipientID, t, created.ID)

	s.pushNotification(ctx, created)
	return created, false, nil
}

func (s *NotificationService) pushNotification(ctx context.Context, n domain.Notification) {
	if s.hub == nil {
		return
	}
	s.hub.PublishToUser(n.RecipientID, domain.EventNewNotification, n)
	s.pushUnreadCount(ctx, n.RecipientID)
}

// pushUnreadCount recomputes the unread total from the store and pushes it
// to every open device. Counts are never cached in memory; the store is
// the single source of truth shared by all instances.
func (s *NotificationService) pushUnreadCount(ctx context.Context, recipientID string) {
	if s.hub == nil {
		return
	}
	count, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		commonlog.Errorf("event=notification action=push_unread_count status=failed recipient_id=%s error=%v", recipientID, err)
		return
	}
	s.hub.PublishToUser(recipientID, domain.EventUnreadCount, domain.UnreadCountEvent{UserID: recipientID, Count: count})
}

func (s *NotificationService) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, recipientID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.store.CountUnread(ctx, recipientID)
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	if err := s.store.MarkRead(ctx, notificationID, recipientID); err != nil {
		return err
	}
	s.pushUnreadCount(ctx, recipientID)
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, notificationID, recipientID string) error {
	if err := s.store.Delete(ctx, notificationID, recipientID); err != nil {
		return err
	}
	s.pushUnreadCount(ctx, recipientID)
	return nil
}

func (s *NotificationService) Preferences(ctx context.Context, userID string) (domain.NotificationPreference, error) {
	return s.prefs.GetOrCreate(ctx, userID)
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, p domain.NotificationPreference) (domain.NotificationPreference, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return domain.NotificationPreference{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	return s.prefs.Update(ctx, p)
}
