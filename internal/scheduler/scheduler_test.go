package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/Timeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeService struct {
	session    *models.Session
	syncErr    error
	syncs      int
	backfills  []int
	upcoming   []models.Event
	lastWithin time.Duration
}

func (f *fakeService) Session(ctx context.Context) *models.Session { return f.session }

func (f *fakeService) Sync(ctx context.Context) (int, error) {
	f.syncs++
	return 1, f.syncErr
}

func (f *fakeService) Backfill(ctx context.Context, limit int) (int, error) {
	f.backfills = append(f.backfills, limit)
	return 0, nil
}

func (f *fakeService) Upcoming(within time.Duration) []models.Event {
	f.lastWithin = within
	return f.upcoming
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) NotifyUpcoming(ctx context.Context, e models.Event, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, e.Title)
	return nil
}

func newScheduler(t *testing.T, svc Service, notifier Notifier) *Scheduler {
	t.Helper()
	s, err := New(svc, notifier, Config{
		SyncSpec:     "*/10 * * * *",
		BackfillSpec: "*/15 * * * *",
		NotifySpec:   "* * * * *",
		NotifyBefore: 15 * time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(&fakeService{}, nil, Config{SyncSpec: "every minute"}, zap.NewNop())
	assert.ErrorContains(t, err, "invalid sync schedule")
}

func TestNewSkipsEmptySpecs(t *testing.T) {
	s, err := New(&fakeService{}, nil, Config{NotifySpec: "* * * * *"}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, s.jobs, 1)
	assert.Equal(t, "notify", s.jobs[0].name)
}

func TestRunSyncNeedsSession(t *testing.T) {
	svc := &fakeService{}
	s := newScheduler(t, svc, nil)

	s.RunSync(context.Background())
	assert.Zero(t, svc.syncs)

	svc.session = &models.Session{UserID: "user-1"}
	s.RunSync(context.Background())
	assert.Equal(t, 1, svc.syncs)

	svc.syncErr = errors.New("db down")
	s.RunSync(context.Background())
	assert.Equal(t, 2, svc.syncs)
}

func TestRunBackfill(t *testing.T) {
	svc := &fakeService{}
	s := newScheduler(t, svc, nil)

	s.RunBackfill(context.Background())
	assert.Empty(t, svc.backfills)

	svc.session = &models.Session{UserID: "user-1"}
	s.RunBackfill(context.Background())
	assert.Equal(t, []int{BackfillLimit}, svc.backfills)
}

func TestRunNotifyOncePerEvent(t *testing.T) {
	start := now.Add(10 * time.Minute)
	svc := &fakeService{upcoming: []models.Event{
		{LocalID: "a", Title: "Standup", Start: start, End: start},
		{LocalID: "b", Title: "Done already", Start: start, End: start,
			ExtendedProps: models.ExtendedProps{Completion: true}},
	}}
	notifier := &fakeNotifier{}
	s := newScheduler(t, svc, notifier)

	s.RunNotify(context.Background())
	s.RunNotify(context.Background())
	assert.Equal(t, []string{"Standup"}, notifier.sent)
	assert.Equal(t, 15*time.Minute, svc.lastWithin)

	// Moving the event makes it due again
	svc.upcoming[0].Start = start.Add(time.Minute)
	s.RunNotify(context.Background())
	assert.Equal(t, []string{"Standup", "Standup"}, notifier.sent)
}

func TestRunNotifyRetriesAfterFailure(t *testing.T) {
	start := now.Add(5 * time.Minute)
	svc := &fakeService{upcoming: []models.Event{{ID: "task-1", Title: "Call", Start: start, End: start}}}
	notifier := &fakeNotifier{err: errors.New("telegram down")}
	s := newScheduler(t, svc, notifier)

	s.RunNotify(context.Background())
	assert.Empty(t, notifier.sent)

	notifier.err = nil
	s.RunNotify(context.Background())
	assert.Equal(t, []string{"Call"}, notifier.sent)
}

func TestRunNotifyForgetsPastEvents(t *testing.T) {
	start := now.Add(5 * time.Minute)
	svc := &fakeService{upcoming: []models.Event{{ID: "task-1", Title: "Call", Start: start, End: start}}}
	s := newScheduler(t, svc, &fakeNotifier{})

	s.RunNotify(context.Background())
	require.Len(t, s.notified, 1)

	s.now = func() time.Time { return start.Add(time.Minute) }
	svc.upcoming = nil
	s.RunNotify(context.Background())
	assert.Empty(t, s.notified)
}

func TestRunNotifyWithoutNotifier(t *testing.T) {
	svc := &fakeService{}
	s := newScheduler(t, svc, nil)
	s.RunNotify(context.Background())
	assert.Zero(t, svc.lastWithin)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := newScheduler(t, &fakeService{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
