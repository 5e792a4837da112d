package service

import (
	"context"
	"time"

	commonlog "social_server/server/common/log"
	"social_server/server/realtime/domain"
)

const notificationRetentionDays = 30

type schedulerPostStore interface {
	CreateScheduled(ctx context.Context, post domain.ScheduledPost) (domain.ScheduledPost, error)
	Get(ctx context.Context, postID string) (domain.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledPost, error)
	MarkPublished(ctx context.Context, postID string) (bool, error)
}

type schedulerActivityStore interface {
	CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error)
}

type notificationSweeper interface {
	DeleteReadBefore(ctx context.Context, cutoffDays int) (int64, error)
}

// SchedulerService owns the periodic sweep that moves due scheduled posts
// from pending to published, exactly once per record, and applies the
// notification retention policy on the same tick.
type SchedulerService struct {
	posts         schedulerPostStore
	activities    schedulerActivityStore
	notifications notificationSweeper
	notifier      recipientNotifier
	events        EventSink
	now           func() time.Time
}

func NewSchedulerService(
	posts schedulerPostStore,
	activities schedulerActivityStore,
	notifications notificationSweeper,
	notifier recipientNotifier,
	events EventSink,
) *SchedulerService {
	return &SchedulerService{
		posts:         posts,
		activities:    activities,
		notifications: notifications,
		notifier:      notifier,
		events:        events,
		now:           time.Now,
	}
}

func (s *SchedulerService) Schedule(ctx context.Context, authorID, body string, dueAt time.Time) (domain.ScheduledPost, error) {
	return s.posts.CreateScheduled(ctx, domain.ScheduledPost{AuthorID: authorID, Body: body, DueAt: &dueAt})
}

func (s *SchedulerService) Get(ctx context.Context, postID string) (domain.ScheduledPost, error) {
	return s.posts.Get(ctx, postID)
}

// StartSweep runs one sweep immediately, then on the fixed interval until
// the returned stop function is called or ctx ends. The ticker goroutine
// is detached from the process lifetime; cancelling is enough to let the
// process exit.
func (s *SchedulerService) StartSweep(ctx context.Context, interval time.Duration) (stop func()) {
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		s.runTick(sweepCtx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runTick(sweepCtx)
			case <-sweepCtx.Done():
				return
			}
		}
	}()
	return cancel
}

// runTick isolates one tick: a failed batch query is fatal for this tick
// only and the next tick retries.
func (s *SchedulerService) runTick(ctx context.Context) {
	result, err := s.RunSweepOnce(ctx)
	if err != nil {
		commonlog.Errorf("event=scheduler action=sweep status=failed error=%v", err)
		return
	}
	if result.Published > 0 || result.Failed > 0 {
		commonlog.Infof("event=scheduler action=sweep status=ok published=%d failed=%d", result.Published, result.Failed)
	}
	s.sweepNotifications(ctx)
}

// RunSweepOnce publishes every due pending post. A single record's failure
// is logged and counted, never aborting the rest of the batch.
func (s *SchedulerService) RunSweepOnce(ctx context.Context) (domain.SweepResult, error) {
	due, err := s.posts.ListDue(ctx, s.now())
	if err != nil {
		return domain.SweepResult{}, err
	}

	var result domain.SweepResult
	for _, post := range due {
		published, err := s.posts.MarkPublished(ctx, post.ID)
		if err != nil {
			result.Failed++
			commonlog.Errorf("event=scheduler action=publish_post status=failed post_id=%s error=%v", post.ID, err)
			continue
		}
		if !published {
			// Another sweep tick or instance already transitioned it.
			continue
		}
		result.Published++
		s.recordPublication(ctx, post)
	}
	return result, nil
}

func (s *SchedulerService) recordPublication(ctx context.Context, post domain.ScheduledPost) {
	if _, err := s.activities.CreateActivity(ctx, domain.Activity{
		ActorID:    post.AuthorID,
		Action:     "post.published",
		TargetType: "scheduled_post",
		TargetID:   post.ID,
	}); err != nil {
		commonlog.Errorf("event=scheduler action=record_activity status=failed post_id=%s error=%v", post.ID, err)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, "post.published", post); err != nil {
			commonlog.Errorf("event=scheduler action=publish_bus status=failed post_id=%s error=%v", post.ID, err)
		}
	}
	if s.notifier != nil {
		related := post.ID
		if _, _, err := s.notifier.Notify(ctx, post.AuthorID, domain.NotificationPostPublished, "Your scheduled post is live", "", &related); err != nil {
			commonlog.Errorf("event=scheduler action=notify_author status=failed post_id=%s error=%v", post.ID, err)
		}
	}
}

func (s *SchedulerService) sweepNotifications(ctx context.Context) {
	if s.notifications == nil {
		return
	}
	removed, err := s.notifications.DeleteReadBefore(ctx, notificationRetentionDays)
	if err != nil {
		commonlog.Errorf("event=scheduler action=retention_sweep status=failed error=%v", err)
		return
	}
	if removed > 0 {
		commonlog.Infof("event=scheduler action=retention_sweep status=ok removed=%d", removed)
	}
}
