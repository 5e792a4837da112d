package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social_server/server/realtime/domain"
)

type memNotificationStore struct {
	mu   sync.Mutex
	seq  int
	rows map[string]domain.Notification
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{rows: map[string]domain.Notification{}}
}

func (s *memNotificationStore) Create(_ context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	n.ID = fmt.Sprintf("notif-%d", s.seq)
	s.rows[n.ID] = n
	return n, nil
}

func (s *memNotificationStore) CountUnread(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.rows {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *memNotificationStore) List(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.rows {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) || len(out) >= limit {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *memNotificationStore) MarkRead(_ context.Context, notificationID, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notificationID]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	n.Read = true
	s.rows[notificationID] = n
	return nil
}

func (s *memNotificationStore) Delete(_ context.Context, notificationID, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notificationID]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	delete(s.rows, notificationID)
	return nil
}

type memPreferenceStore struct {
	mu      sync.Mutex
	rows    map[string]domain.NotificationPreference
	creates int
}

func newMemPreferenceStore() *memPreferenceStore {
	return &memPreferenceStore{rows: map[string]domain.NotificationPreference{}}
}

func (s *memPreferenceStore) GetOrCreate(_ context.Context, userID string) (domain.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.rows[userID]; ok {
		return p, nil
	}
	s.creates++
	p := domain.DefaultPreference(userID)
	s.rows[userID] = p
	return p, nil
}

func (s *memPreferenceStore) Update(_ context.Context, p domain.NotificationPreference) (domain.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.UserID] = p
	return p, nil
}

func TestNotifyDefaultPreferenceIsPermissive(t *testing.T) {
	store := newMemNotificationStore()
	prefs := newMemPreferenceStore()
	pusher := &fakePusher{}
	svc := NewNotificationService(store, prefs, pusher)

	created, suppressed, err := svc.Notify(context.Background(), "dave", domain.NotificationFollow, "New follower", "alice follows you", nil)
	require.NoError(t, err)
	assert.False(t, suppressed)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, prefs.creates, "first notify creates the preference row")

	names := pusher.eventNames()
	assert.Contains(t, names, domain.EventNewNotification)
	assert.Contains(t, names, domain.EventUnreadCount)
}

func TestNotifySuppressedWritesNothing(t *testing.T) {
	store := newMemNotificationStore()
	prefs := newMemPreferenceStore()
	pref := domain.DefaultPreference("dave")
	pref.MessageNotifications = false
	prefs.rows["dave"] = pref

	pusher := &fakePusher{}
	svc := NewNotificationService(store, prefs, pusher)

	_, suppressed, err := svc.Notify(context.Background(), "dave", domain.NotificationMessageReceived, "New message", "hi", nil)
	require.NoError(t, err)
	assert.True(t, suppressed)
	assert.Empty(t, store.rows)
	assert.Empty(t, pusher.eventNames())

	// Other types stay deliverable.
	_, suppressed, err = svc.Notify(context.Background(), "dave", domain.NotificationReaction, "New reaction", "👍", nil)
	require.NoError(t, err)
	assert.False(t, suppressed)
	assert.Len(t, store.rows, 1)
}

func TestNotifyRejectsUnknownType(t *testing.T) {
	svc := NewNotificationService(newMemNotificationStore(), newMemPreferenceStore(), nil)

	_, _, err := svc.Notify(context.Background(), "dave", domain.NotificationType("carrier_pigeon"), "Coo", "", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.Notify(context.Background(), "", domain.NotificationFollow, "New follower", "", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNotifyPersistsWithoutPusher(t *testing.T) {
	store := newMemNotificationStore()
	svc := NewNotificationService(store, newMemPreferenceStore(), nil)

	created, suppressed, err := svc.Notify(context.Background(), "dave", domain.NotificationMention, "You were mentioned", "", nil)
	require.NoError(t, err)
	assert.False(t, suppressed)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, store.rows, 1)
}

func TestMarkReadRepushesUnreadCount(t *testing.T) {
	store := newMemNotificationStore()
	prefs := newMemPreferenceStore()
	pusher := &fakePusher{}
	svc := NewNotificationService(store, prefs, pusher)
	ctx := context.Background()

	first, _, err := svc.Notify(ctx, "dave", domain.NotificationFollow, "New follower", "", nil)
	require.NoError(t, err)
	_, _, err = svc.Notify(ctx, "dave", domain.NotificationReaction, "New reaction", "", nil)
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, svc.MarkRead(ctx, first.ID, "dave"))
	count, err = svc.UnreadCount(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Marking someone else's row is a not-found, not a cross-user write.
	err = svc.MarkRead(ctx, first.ID, "erin")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersUnreadOnly(t *testing.T) {
	store := newMemNotificationStore()
	svc := NewNotificationService(store, newMemPreferenceStore(), nil)
	ctx := context.Background()

	first, _, err := svc.Notify(ctx, "dave", domain.NotificationFollow, "New follower", "", nil)
	require.NoError(t, err)
	_, _, err = svc.Notify(ctx, "dave", domain.NotificationMention, "You were mentioned", "", nil)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, first.ID, "dave"))

	all, err := svc.List(ctx, "dave", false, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err := svc.List(ctx, "dave", true, 50)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, domain.NotificationMention, unread[0].Type)
}

func TestUpdatePreferencesRequiresUser(t *testing.T) {
	svc := NewNotificationService(newMemNotificationStore(), newMemPreferenceStore(), nil)

	_, err := svc.UpdatePreferences(context.Background(), domain.NotificationPreference{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	pref := domain.DefaultPreference("dave")
	pref.PostNotifications = false
	saved, err := svc.UpdatePreferences(context.Background(), pref)
	require.NoError(t, err)
	assert.False(t, saved.PostNotifications)
}
