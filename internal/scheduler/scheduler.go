package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hray3182/Timeline/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BackfillLimit bounds how many embeddings one backfill run generates.
const BackfillLimit = 50

type Service interface {
	Session(ctx context.Context) *models.Session
	Sync(ctx context.Context) (int, error)
	Backfill(ctx context.Context, limit int) (int, error)
	Upcoming(within time.Duration) []models.Event
}

// Notifier delivers upcoming event reminders
type Notifier interface {
	NotifyUpcoming(ctx context.Context, e models.Event, now time.Time) error
}

// Config holds the cron specs of the jobs. An empty spec disables its job.
type Config struct {
	SyncSpec     string
	BackfillSpec string
	NotifySpec   string
	NotifyBefore time.Duration
}

type job struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context)
}

type Scheduler struct {
	svc          Service
	notifier     Notifier
	notifyBefore time.Duration
	jobs         []job
	logger       *zap.Logger
	now          func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time // event key -> start it was notified for
}

// New parses the job specs. notifier may be nil, which disables reminders.
func New(svc Service, notifier Notifier, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		svc:          svc,
		notifier:     notifier,
		notifyBefore: cfg.NotifyBefore,
		logger:       logger,
		now:          time.Now,
		notified:     make(map[string]time.Time),
	}

	specs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"sync", cfg.SyncSpec, s.RunSync},
		{"backfill", cfg.BackfillSpec, s.RunBackfill},
		{"notify", cfg.NotifySpec, s.RunNotify},
	}
	for _, sp := range specs {
		if sp.spec == "" {
			continue
		}
		schedule, err := cron.ParseStandard(sp.spec)
		if err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", sp.name, sp.spec, err)
		}
		s.jobs = append(s.jobs, job{name: sp.name, schedule: schedule, run: sp.run})
	}
	return s, nil
}

// Start runs the jobs until ctx is cancelled and waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, j := range s.jobs {
		j := j
		c.Schedule(j.schedule, cron.FuncJob(func() { j.run(ctx) }))
	}

	c.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunSync pushes events created while offline.
func (s *Scheduler) RunSync(ctx context.Context) {
	if s.svc.Session(ctx) == nil {
		return
	}
	n, err := s.svc.Sync(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNoSession) {
			s.logger.Warn("Scheduled sync failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("Scheduled sync", zap.Int("synced", n))
	}
}

// RunBackfill generates the embeddings missing from remote rows.
func (s *Scheduler) RunBackfill(ctx context.Context) {
	if s.svc.Session(ctx) == nil {
		return
	}
	n, err := s.svc.Backfill(ctx, BackfillLimit)
	if err != nil {
		if !errors.Is(err, models.ErrNoSession) {
			s.logger.Warn("Embedding backfill failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("Embedding backfill", zap.Int("embedded", n))
	}
}

// RunNotify reminds about events starting within the notify window. Each
// event is notified once per start time.
func (s *Scheduler) RunNotify(ctx context.Context) {
	if s.notifier == nil || s.notifyBefore <= 0 {
		return
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, start := range s.notified {
		if start.Before(now) {
			delete(s.notified, key)
		}
	}

	for _, e := range s.svc.Upcoming(s.notifyBefore) {
		if e.ExtendedProps.Completion {
			continue
		}
		key := notifyKey(e)
		if start, ok := s.notified[key]; ok && start.Equal(e.Start) {
			continue
		}
		if err := s.notifier.NotifyUpcoming(ctx, e, now); err != nil {
			s.logger.Warn("Failed to send event notification", zap.String("ref", e.Ref()), zap.Error(err))
			continue
		}
		s.notified[key] = e.Start
		s.logger.Info("Sent event notification", zap.String("ref", e.Ref()))
	}
}

// notifyKey stays stable when a local event receives its remote id.
func notifyKey(e models.Event) string {
	if e.LocalID != "" {
		return e.LocalID
	}
	if e.ID != "" {
		return e.ID
	}
	return e.Title + "@" + strconv.FormatInt(e.Start.Unix(), 10)
}
