package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/Timeline/internal/embedding"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errBackend = errors.New("backend unavailable")

type fakeCache struct {
	mu      sync.Mutex
	saved   []models.Event
	saves   int
	saveErr error
}

func (c *fakeCache) Load(ctx context.Context) ([]models.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		return []models.Event{}, nil
	}
	return slices.Clone(c.saved), nil
}

func (c *fakeCache) Save(ctx context.Context, events []models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = slices.Clone(events)
	c.saves++
	return nil
}

func (c *fakeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = nil
	return nil
}

func (c *fakeCache) snapshot() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		return []models.Event{}
	}
	return slices.Clone(c.saved)
}

type fakeStore struct {
	mu         sync.Mutex
	rows       map[string]models.Event
	owners     map[string]string
	embeddings map[string][]float32
	nextID     int
	calls      []string

	insertErr error
	updateErr error
	deleteErr error
	fetchErr  error
	searchErr error
	similar   *models.Event

	// When set, Insert signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:       map[string]models.Event{},
		owners:     map[string]string{},
		embeddings: map[string][]float32{},
	}
}

func (s *fakeStore) add(userID string, e models.Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = fmt.Sprintf("task-%d", s.nextID)
	e.LocalID = ""
	s.rows[e.ID] = e
	s.owners[e.ID] = userID
	return e.ID
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeStore) Insert(ctx context.Context, userID string, event *models.Event) (string, error) {
	s.mu.Lock()
	s.record("insert")
	err := s.insertErr
	started, release := s.started, s.release
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return "", err
	}
	return s.add(userID, *event), nil
}

func (s *fakeStore) FetchForUser(ctx context.Context, userID string) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("fetch")
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []models.Event
	for id, e := range s.rows {
		if s.owners[id] == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, taskID, userID string, patch models.EventPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update")
	if s.updateErr != nil {
		return s.updateErr
	}
	row, ok := s.rows[taskID]
	if !ok || s.owners[taskID] != userID {
		return nil
	}
	patch.Apply(&row)
	s.rows[taskID] = row
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, taskID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if s.owners[taskID] == userID {
		delete(s.rows, taskID)
		delete(s.owners, taskID)
	}
	return nil
}

func (s *fakeStore) SimilaritySearch(ctx context.Context, taskID, userID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("search")
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if s.similar == nil {
		return nil, nil
	}
	match := *s.similar
	return &match, nil
}

func (s *fakeStore) SetEmbedding(ctx context.Context, taskID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("embed")
	s.embeddings[taskID] = vec
	return nil
}

func (s *fakeStore) MissingEmbeddings(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for id, e := range s.rows {
		if s.owners[id] == userID && s.embeddings[id] == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) callCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

// blockInserts makes the next inserts wait until the returned func is called.
func (s *fakeStore) blockInserts() (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = make(chan struct{}, 8)
	s.release = make(chan struct{})
	return s.started, sync.OnceFunc(func() { close(s.release) })
}

func (s *fakeStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) row(id string) (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	return e, ok
}

func (s *fakeStore) embeddingOf(id string) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embeddings[id]
}

type fakeSessions struct {
	mu      sync.Mutex
	session *models.Session
}

func (f *fakeSessions) GetSession(ctx context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeSessions) SignIn(ctx context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" {
		return nil, errors.New("empty token")
	}
	f.session = &models.Session{UserID: token}
	return f.session, nil
}

func (f *fakeSessions) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, event *models.Event) ([]float32, error) {
	return nil, embedding.ErrDimensionMismatch
}

type fakePublisher struct {
	mu    sync.Mutex
	kinds []models.ChangeKind
}

func (p *fakePublisher) Publish(ctx context.Context, change models.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, change.Kind)
	return nil
}

const testUser = "user-1"

type fixture struct {
	m         *Manager
	cache     *fakeCache
	store     *fakeStore
	sessions  *fakeSessions
	publisher *fakePublisher
	logs      *observer.ObservedLogs
}

type fixtureOption func(*fixture, *Options)

func withSession(f *fixture, _ *Options) {
	f.sessions.session = &models.Session{UserID: testUser}
}

func withMode(mode string) fixtureOption {
	return func(_ *fixture, o *Options) { o.BootstrapMode = mode }
}

func withNow(now time.Time) fixtureOption {
	return func(_ *fixture, o *Options) { o.Now = func() time.Time { return now } }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	return newFixtureWithGenerator(t, embedding.NewGenerator(embedding.NewHashEmbedder()), opts...)
}

func newFixtureWithGenerator(t *testing.T, gen Generator, opts ...fixtureOption) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		cache:     &fakeCache{},
		store:     newFakeStore(),
		sessions:  &fakeSessions{},
		publisher: &fakePublisher{},
		logs:      logs,
	}

	o := Options{Publisher: f.publisher}
	for _, opt := range opts {
		opt(f, &o)
	}

	f.m = New(f.cache, f.store, gen, f.sessions, zap.New(core), o)
	t.Cleanup(f.m.Close)
	return f
}

func (f *fixture) logged(msg string) int {
	return f.logs.FilterMessage(msg).Len()
}
