// Package manager owns the event list of the device. It keeps the in-memory
// list and the persisted snapshot equal, reconciles with the remote task_log
// when a session exists and runs the recommendation workflow.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("event not found")
	ErrNoSimilarEvent = errors.New("no similar event found")
)

// RecommendOffset is added to the schedule of the matched event.
const RecommendOffset = 7 * 24 * time.Hour

const (
	BootstrapMerge   = "merge"
	BootstrapReplace = "replace"
)

// Cache is the persisted snapshot of the event list
type Cache interface {
	Load(ctx context.Context) ([]models.Event, error)
	Save(ctx context.Context, events []models.Event) error
	Clear(ctx context.Context) error
}

// Store is the remote task_log
type Store interface {
	Insert(ctx context.Context, userID string, event *models.Event) (string, error)
	FetchForUser(ctx context.Context, userID string) ([]models.Event, error)
	Update(ctx context.Context, taskID, userID string, patch models.EventPatch) error
	Delete(ctx context.Context, taskID, userID string) error
	SimilaritySearch(ctx context.Context, taskID, userID string) (*models.Event, error)
	SetEmbedding(ctx context.Context, taskID string, vec []float32) error
	MissingEmbeddings(ctx context.Context, userID string, limit int) ([]models.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, event *models.Event) ([]float32, error)
}

type Sessions interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SignIn(ctx context.Context, token string) (*models.Session, error)
	SignOut(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, change models.Change) error
}

type Options struct {
	BootstrapMode string
	SyncOnLogin   bool
	RemoteTimeout time.Duration
	EmbedTimeout  time.Duration
	Publisher     Publisher
	Now           func() time.Time
}

type Manager struct {
	mu     sync.Mutex
	events []models.Event

	// LocalIDs with a remote insert in progress, and those of them deleted
	// before the insert returned
	inflight map[string]bool
	deleted  map[string]bool

	cache     Cache
	store     Store
	generator Generator
	sessions  Sessions
	publisher Publisher
	logger    *zap.Logger
	opts      Options

	bg       context.Context
	cancelBG context.CancelFunc
	wg       sync.WaitGroup
}

// New wires a manager. store may be nil, in which case the manager is
// local-only.
func New(cache Cache, store Store, generator Generator, sessions Sessions, logger *zap.Logger, opts Options) *Manager {
	if opts.BootstrapMode == "" {
		opts.BootstrapMode = BootstrapMerge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	bg, cancel := context.WithCancel(context.Background())
	return &Manager{
		events:    []models.Event{},
		inflight:  map[string]bool{},
		deleted:   map[string]bool{},
		cache:     cache,
		store:     store,
		generator: generator,
		sessions:  sessions,
		publisher: opts.Publisher,
		logger:    logger,
		opts:      opts,
		bg:        bg,
		cancelBG:  cancel,
	}
}

// Load reads the persisted snapshot into memory. It does not need a session.
func (m *Manager) Load(ctx context.Context) error {
	events, err := m.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load local events: %w", err)
	}

	m.mu.Lock()
	m.events = events
	m.mu.Unlock()

	m.logger.Info("Loaded local events", zap.Int("count", len(events)))
	return nil
}

// Start loads the local snapshot and then reconciles with the remote store.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Load(ctx); err != nil {
		return err
	}
	return m.Refresh(ctx)
}

// Wait blocks until background embedding work has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels background work and waits for it.
func (m *Manager) Close() {
	m.cancelBG()
	m.wg.Wait()
}

// Events returns a copy of the current list.
func (m *Manager) Events() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Get returns the event addressed by ref.
func (m *Manager) Get(ref string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(ref)
	if i < 0 {
		return models.Event{}, ErrNotFound
	}
	return m.events[i], nil
}

// Session returns the active session, or nil when the manager is local-only.
func (m *Manager) Session(ctx context.Context) *models.Session {
	if m.store == nil {
		return nil
	}
	session, err := m.sessions.GetSession(ctx)
	if err != nil {
		m.logger.Warn("Failed to read session", zap.Error(err))
		return nil
	}
	return session
}

// saveLocally persists events and then makes them current. Callers hold mu.
func (m *Manager) saveLocally(ctx context.Context, events []models.Event) error {
	if err := m.cache.Save(ctx, events); err != nil {
		return fmt.Errorf("failed to save local events: %w", err)
	}
	m.events = events
	return nil
}

func (m *Manager) indexOf(ref string) int {
	return slices.IndexFunc(m.events, func(e models.Event) bool { return e.Matches(ref) })
}

func (m *Manager) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.RemoteTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.RemoteTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) embedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.EmbedTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.EmbedTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) publish(ctx context.Context, kind models.ChangeKind, event *models.Event) {
	if m.publisher == nil {
		return
	}
	change := models.Change{Kind: kind, Event: event, At: m.opts.Now().UTC()}
	if err := m.publisher.Publish(ctx, change); err != nil {
		m.logger.Warn("Failed to publish change", zap.String("kind", string(kind)), zap.Error(err))
	}
}
