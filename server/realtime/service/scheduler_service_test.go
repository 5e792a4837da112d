package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social_server/server/realtime/domain"
)

type memPostStore struct {
	mu         sync.Mutex
	seq        int
	rows       map[string]domain.ScheduledPost
	failIDs    map[string]error
	lastListAt time.Time
}

func newMemPostStore() *memPostStore {
	return &memPostStore{rows: map[string]domain.ScheduledPost{}, failIDs: map[string]error{}}
}

func (s *memPostStore) CreateScheduled(_ context.Context, post domain.ScheduledPost) (domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	post.ID = fmt.Sprintf("post-%d", s.seq)
	post.Status = domain.PostStatusPending
	post.CreatedAt = time.Now()
	s.rows[post.ID] = post
	return post, nil
}

func (s *memPostStore) Get(_ context.Context, postID string) (domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.rows[postID]
	if !ok {
		return domain.ScheduledPost{}, domain.ErrNotFound
	}
	return post, nil
}

func (s *memPostStore) ListDue(_ context.Context, now time.Time) ([]domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastListAt = now
	var out []domain.ScheduledPost
	for _, post := range s.rows {
		if post.Status == domain.PostStatusPending && post.DueAt != nil && !post.DueAt.After(now) {
			out = append(out, post)
		}
	}
	return out, nil
}

// MarkPublished mirrors the conditional UPDATE: the pending->published
// transition succeeds at most once per record.
func (s *memPostStore) MarkPublished(_ context.Context, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failIDs[postID]; err != nil {
		return false, err
	}
	post, ok := s.rows[postID]
	if !ok || post.Status != domain.PostStatusPending {
		return false, nil
	}
	post.Status = domain.PostStatusPublished
	now := time.Now()
	post.PublishedAt = &now
	s.rows[postID] = post
	return true, nil
}

type memActivityStore struct {
	mu   sync.Mutex
	rows []domain.Activity
}

func (s *memActivityStore) CreateActivity(_ context.Context, a domain.Activity) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = fmt.Sprintf("act-%d", len(s.rows)+1)
	s.rows = append(s.rows, a)
	return s.rows[len(s.rows)-1], nil
}

func (s *memActivityStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeSweeper struct {
	mu      sync.Mutex
	cutoffs []int
	removed int64
}

func (f *fakeSweeper) DeleteReadBefore(_ context.Context, cutoffDays int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoffDays)
	return f.removed, nil
}

type schedulerFixture struct {
	svc        *SchedulerService
	posts      *memPostStore
	activities *memActivityStore
	sweeper    *fakeSweeper
	notifier   *fakeNotifier
	sink       *fakeSink
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{
		posts:      newMemPostStore(),
		activities: &memActivityStore{},
		sweeper:    &fakeSweeper{},
		notifier:   &fakeNotifier{},
		sink:       &fakeSink{},
	}
	f.svc = NewSchedulerService(f.posts, f.activities, f.sweeper, f.notifier, f.sink)
	return f
}

func (f *schedulerFixture) schedule(t *testing.T, authorID string, dueAt time.Time) domain.ScheduledPost {
	t.Helper()
	post, err := f.svc.Schedule(context.Background(), authorID, "scheduled body", dueAt)
	require.NoError(t, err)
	return post
}

func TestRunSweepOncePublishesDuePosts(t *testing.T) {
	f := newSchedulerFixture()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	due1 := f.schedule(t, "alice", now.Add(-time.Minute))
	due2 := f.schedule(t, "bob", now.Add(-time.Hour))
	future := f.schedule(t, "carol", now.Add(time.Hour))

	result, err := f.svc.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SweepResult{Published: 2}, result)
	assert.Equal(t, now, f.posts.lastListAt, "the sweep queries against the injected clock")
	assert.Equal(t, 2, f.activities.count())
	assert.Equal(t, []string{"post.published", "post.published"}, f.sink.keys)

	for _, postID := range []string{due1.ID, due2.ID} {
		post, err := f.svc.Get(context.Background(), postID)
		require.NoError(t, err)
		assert.Equal(t, domain.PostStatusPublished, post.Status)
		assert.NotNil(t, post.PublishedAt)
	}
	pending, err := f.svc.Get(context.Background(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusPending, pending.Status)

	// Authors hear about their own publications through the gate.
	require.Len(t, f.notifier.callsFor("alice"), 1)
	assert.Equal(t, domain.NotificationPostPublished, f.notifier.callsFor("alice")[0].Type)
}

func TestRunSweepOnceIsIdempotent(t *testing.T) {
	f := newSchedulerFixture()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	f.schedule(t, "alice", now.Add(-time.Minute))

	first, err := f.svc.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Published)

	second, err := f.svc.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Published)
	assert.Equal(t, 1, f.activities.count())
}

func TestRunSweepOnceContinuesPastFailures(t *testing.T) {
	f := newSchedulerFixture()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	f.schedule(t, "alice", now.Add(-time.Minute))
	broken := f.schedule(t, "bob", now.Add(-time.Minute))
	f.schedule(t, "carol", now.Add(-time.Minute))
	f.posts.failIDs[broken.ID] = errors.New("connection reset")

	result, err := f.svc.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Published)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, f.activities.count())
}

func TestConcurrentSweepsPublishExactlyOnce(t *testing.T) {
	f := newSchedulerFixture()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	f.schedule(t, "alice", now.Add(-time.Minute))

	const sweeps = 8
	results := make([]domain.SweepResult, sweeps)
	var wg sync.WaitGroup
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.RunSweepOnce(context.Background())
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Published
	}
	assert.Equal(t, 1, total, "the conditional transition admits a single winner")
	assert.Equal(t, 1, f.activities.count())
	assert.Len(t, f.notifier.callsFor("alice"), 1)
}

func TestTickAppliesRetentionPolicy(t *testing.T) {
	f := newSchedulerFixture()
	f.sweeper.removed = 3

	f.svc.runTick(context.Background())

	require.Len(t, f.sweeper.cutoffs, 1)
	assert.Equal(t, notificationRetentionDays, f.sweeper.cutoffs[0])
}

func TestStartSweepStops(t *testing.T) {
	f := newSchedulerFixture()

	stop := f.svc.StartSweep(context.Background(), 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()

	f.sweeper.mu.Lock()
	ticks := len(f.sweeper.cutoffs)
	f.sweeper.mu.Unlock()
	assert.GreaterOrEqual(t, ticks, 1, "the immediate tick runs before the first interval")
}
