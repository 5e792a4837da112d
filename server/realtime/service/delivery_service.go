package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	commonlog "social_server/server/common/log"
	"social_server/server/realtime/domain"
)

// Pusher is the live fan-out surface the delivery engine and notification
// gate publish through. It is an explicit nullable dependency: with no
// router configured (tests, offline tooling) persistence still happens and
// pushes are skipped.
type Pusher interface {
	PublishToRoom(roomID, event string, payload any)
	PublishToUser(userID, event string, payload any)
	Broadcast(event string, payload any)
}

// EventSink mirrors domain events onto the durable bus; best-effort.
type EventSink interface {
	Publish(ctx context.Context, key string, payload any) error
}

type deliveryMessageStore interface {
	Create(ctx context.Context, msg domain.Message) (domain.Message, error)
	Get(ctx context.Context, messageID string) (domain.Message, error)
	Delete(ctx context.Context, messageID string) error
	TogglePin(ctx context.Context, messageID string) (domain.Message, error)
	ListByRoom(ctx context.Context, roomID string, limit int, cursorID *string) ([]domain.Message, error)
}

type deliveryReactionStore interface {
	Create(ctx context.Context, reaction domain.Reaction) error
	Delete(ctx context.Context, messageID, userID, emoji string) (bool, error)
	GroupsForMessage(ctx context.Context, messageID string) ([]domain.ReactionGroup, error)
}

type deliveryReceiptStore interface {
	Upsert(ctx context.Context, messageID, userID string) (domain.ReadReceipt, error)
	ListForMessage(ctx context.Context, messageID string) ([]domain.ReadReceipt, error)
}

type deliveryRoomStore interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
}

type deliveryReportStore interface {
	CreateReport(ctx context.Context, report domain.Report) (domain.Report, error)
}

type recipientNotifier interface {
	Notify(ctx context.Context, recipientID string, t domain.NotificationType, title, message string, relatedID *string) (domain.Notification, bool, error)
}

// DeliveryService turns accepted writes into persisted records, derived
// counter updates and room-scoped pushes.
type DeliveryService struct {
	messages  deliveryMessageStore
	reactions deliveryReactionStore
	receipts  deliveryReceiptStore
	rooms     deliveryRoomStore
	reports   deliveryReportStore
	notifier  recipientNotifier
	scanner   ContentScanner
	hub       Pusher
	events    EventSink
}

func NewDeliveryService(
	messages deliveryMessageStore,
	reactions deliveryReactionStore,
	receipts deliveryReceiptStore,
	rooms deliveryRoomStore,
	reports deliveryReportStore,
	notifier recipientNotifier,
	scanner ContentScanner,
	hub Pusher,
	events EventSink,
) *DeliveryService {
	return &DeliveryService{
		messages:  messages,
		reactions: reactions,
		receipts:  receipts,
		rooms:     rooms,
		reports:   reports,
		notifier:  notifier,
		scanner:   scanner,
		hub:       hub,
		events:    events,
	}
}

func (s *DeliveryService) IsRoomMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.rooms.IsMember(ctx, roomID, userID)
}

// SendMessage persists the message, fans it out to the room, and kicks off
// the detached side effects: content-policy report and recipient
// notifications. The rider effects never fail the send.
func (s *DeliveryService) SendMessage(ctx context.Context, roomID, senderID, text string, attachmentURL *string) (domain.Message, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(senderID) == "" {
		return domain.Message{}, fmt.Errorf("%w: room_id and sender_id are required", domain.ErrValidation)
	}
	if strings.TrimSpace(text) == "" && (attachmentURL == nil || strings.TrimSpace(*attachmentURL) == "") {
		return domain.Message{}, fmt.Errorf("%w: message needs text or an attachment", domain.ErrValidation)
	}
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return domain.Message{}, err
	}

	created, err := s.messages.Create(ctx, domain.Message{RoomID: roomID, SenderID: senderID, Body: text, AttachmentURL: attachmentURL})
	if err != nil {
		return domain.Message{}, err
	}
	commonlog.Infof("event=delivery action=send_message status=ok room_id=%s sender_id=%s message_id=%s", roomID, senderID, created.ID)

	s.publishRoom(roomID, domain.EventMessageCreated, created)
	s.publishBus(ctx, domain.EventMessageCreated, created)
	s.scanAndReport(created)
	s.notifyRoomRecipients(ctx, created)

	return created, nil
}

// scanAndReport runs the policy scan synchronously but files the report as
// a detached task; a match never blocks or fails the send.
func (s *DeliveryService) scanAndReport(msg domain.Message) {
	if s.scanner == nil || s.reports == nil {
		return
	}
	keyword, ok := s.scanner.Scan(msg.Body)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		report, err := s.reports.CreateReport(ctx, domain.Report{
			MessageID:      msg.ID,
			RoomID:         msg.RoomID,
			SenderID:       msg.SenderID,
			MatchedKeyword: keyword,
		})
		if err != nil {
			commonlog.Errorf("event=delivery action=auto_report status=failed message_id=%s keyword=%s error=%v", msg.ID, keyword, err)
			return
		}
		commonlog.Warnf("event=delivery action=auto_report status=ok message_id=%s report_id=%s keyword=%s", msg.ID, report.ID, keyword)
	}()
}

// notifyRoomRecipients hands the message to the notification gate for every
// participant except the sender; the gate decides suppress/allow per user.
func (s *DeliveryService) notifyRoomRecipients(ctx context.Context, msg domain.Message) {
	if s.notifier == nil {
		return
	}
	memberIDs, err := s.rooms.MemberIDs(ctx, msg.RoomID)
	if err != nil {
		commonlog.Errorf("event=delivery action=notify_recipients status=failed room_id=%s error=%v", msg.RoomID, err)
		return
	}
	for _, memberID := range memberIDs {
		if memberID == msg.SenderID {
			continue
		}
		related := msg.ID
		if _, _, err := s.notifier.Notify(ctx, memberID, domain.NotificationMessageReceived, "New message", summarize(msg.Body), &related); err != nil {
			commonlog.Errorf("event=delivery action=notify_recipients status=failed recipient_id=%s message_id=%s error=%v", memberID, msg.ID, err)
		}
	}
}

// summarize truncates on a rune boundary so a multi-byte character is
// never split mid-sequence.
func summarize(body string) string {
	const max = 120
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// DeleteMessage removes the canonical record. Allowed for the sender or a
// privileged actor; deleting an already-deleted message is a not-found.
func (s *DeliveryService) DeleteMessage(ctx context.Context, messageID, actorID string, privileged bool) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID && !privileged {
		return fmt.Errorf("%w: only the sender or a privileged role may delete", domain.ErrForbidden)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	commonlog.Infof("event=delivery action=delete_message status=ok message_id=%s actor_id=%s", messageID, actorID)

	payload := domain.MessageDeletedEvent{MessageID: messageID, RoomID: msg.RoomID}
	s.publishRoom(msg.RoomID, domain.EventMessageDeleted, payload)
	s.publishBus(ctx, domain.EventMessageDeleted, payload)
	return nil
}

// ToggleReaction alternates the (message, user, emoji) row. The store's
// unique key serializes concurrent toggles on one key across instances; a
// create that loses that race is treated as already-added, not an error.
func (s *DeliveryService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (added bool, err error) {
	if strings.TrimSpace(emoji) == "" || strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("%w: user_id and emoji are required", domain.ErrValidation)
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := s.requireMember(ctx, msg.RoomID, userID); err != nil {
		return false, err
	}

	removed, err := s.reactions.Delete(ctx, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	payload := domain.ReactionEvent{MessageID: messageID, RoomID: msg.RoomID, UserID: userID, Emoji: emoji}
	if removed {
		commonlog.Infof("event=delivery action=toggle_reaction status=removed message_id=%s user_id=%s emoji=%s", messageID, userID, emoji)
		s.publishRoom(msg.RoomID, domain.EventReactionRemoved, payload)
		s.publishBus(ctx, domain.EventReactionRemoved, payload)
		return false, nil
	}

	err = s.reactions.Create(ctx, domain.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji})
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent toggle created the row between our delete and
		// create; that toggle owns the reaction.added publish.
		commonlog.Warnf("event=delivery action=toggle_reaction status=conflict_recovered message_id=%s user_id=%s emoji=%s", messageID, userID, emoji)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	commonlog.Infof("event=delivery action=toggle_reaction status=added message_id=%s user_id=%s emoji=%s", messageID, userID, emoji)
	s.publishRoom(msg.RoomID, domain.EventReactionAdded, payload)
	s.publishBus(ctx, domain.EventReactionAdded, payload)

	if s.notifier != nil && msg.SenderID != userID {
		related := messageID
		if _, _, err := s.notifier.Notify(ctx, msg.SenderID, domain.NotificationReaction, "New reaction", emoji, &related); err != nil {
			commonlog.Errorf("event=delivery action=toggle_reaction status=notify_failed message_id=%s error=%v", messageID, err)
		}
	}
	return true, nil
}

// MarkRead upserts the reader's receipt. The sender marking their own
// message is a no-op regardless of call count.
func (s *DeliveryService) MarkRead(ctx context.Context, messageID, userID string) (*domain.ReadReceipt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, msg.RoomID, userID); err != nil {
		return nil, err
	}
	if msg.SenderID == userID {
		return nil, nil
	}

	receipt, err := s.receipts.Upsert(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	s.publishRoom(msg.RoomID, domain.EventMessageRead, domain.MessageReadEvent{
		MessageID: messageID,
		RoomID:    msg.RoomID,
		UserID:    userID,
		ReadAt:    receipt.ReadAt,
	})
	return &receipt, nil
}

// TogglePin flips the pinned flag. Any room participant may pin or unpin;
// there is no sender-only restriction, unlike delete.
func (s *DeliveryService) TogglePin(ctx context.Context, messageID, actorID string) (domain.Message, error) {
	existing, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.requireMember(ctx, existing.RoomID, actorID); err != nil {
		return domain.Message{}, err
	}
	msg, err := s.messages.TogglePin(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	commonlog.Infof("event=delivery action=toggle_pin status=ok message_id=%s pinned=%t", messageID, msg.Pinned)

	payload := domain.MessagePinnedEvent{MessageID: msg.ID, RoomID: msg.RoomID, Pinned: msg.Pinned}
	s.publishRoom(msg.RoomID, domain.EventMessagePinned, payload)
	s.publishBus(ctx, domain.EventMessagePinned, payload)
	return msg, nil
}

// ListRoomMessages returns messages with their reaction aggregates
// recomputed from rows on every read.
func (s *DeliveryService) ListRoomMessages(ctx context.Context, roomID string, limit int, cursorID *string) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.messages.ListByRoom(ctx, roomID, limit, cursorID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		groups, err := s.reactions.GroupsForMessage(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Reactions = groups
	}
	return items, nil
}

func (s *DeliveryService) ListReaders(ctx context.Context, messageID, actorID string) ([]domain.ReadReceipt, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, msg.RoomID, actorID); err != nil {
		return nil, err
	}
	return s.receipts.ListForMessage(ctx, messageID)
}

// requireMember gates message operations on room participation; messages
// are visible only inside their room.
func (s *DeliveryService) requireMember(ctx context.Context, roomID, userID string) error {
	isMember, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a room participant", domain.ErrForbidden)
	}
	return nil
}

func (s *DeliveryService) publishRoom(roomID, event string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.PublishToRoom(roomID, event, payload)
}

func (s *DeliveryService) publishBus(ctx context.Context, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		commonlog.Errorf("event=delivery action=publish_bus status=failed key=%s error=%v", key, err)
	}
}
