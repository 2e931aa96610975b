package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/Timeline/internal/ai"
	"github.com/hray3182/Timeline/internal/embedding"
	"github.com/hray3182/Timeline/internal/localstore"
	"github.com/hray3182/Timeline/internal/manager"
	"github.com/hray3182/Timeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ownerID = 42

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type sentRequest struct {
	method string
	text   string
	file   bool
}

// fakeTelegram answers the Bot API calls the handlers make and records them.
type fakeTelegram struct {
	mu       sync.Mutex
	requests []sentRequest
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	req := sentRequest{method: method, text: r.FormValue("text")}
	if r.MultipartForm != nil {
		_, req.file = r.MultipartForm.File["document"]
	}

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"t","username":"tbot"}}`))
		return
	case "deleteMessage":
		w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
}

func (f *fakeTelegram) sent() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.requests...)
}

func (f *fakeTelegram) lastText(t *testing.T) string {
	t.Helper()
	reqs := f.sent()
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1].text
}

type fakeParser struct {
	draft *ai.EventDraft
	err   error
}

func (p *fakeParser) ParseEvent(ctx context.Context, userMessage string) (*ai.EventDraft, error) {
	return p.draft, p.err
}

type fixture struct {
	h   *Handlers
	tg  *fakeTelegram
	mgr *manager.Manager
}

func newFixture(t *testing.T, parser EventParser) *fixture {
	t.Helper()
	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint("token", srv.URL+"/bot%s/%s")
	require.NoError(t, err)

	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	mgr := manager.New(store, nil, embedding.NewGenerator(embedding.NewHashEmbedder()), noSessions{}, logger,
		manager.Options{Now: func() time.Time { return now }})
	t.Cleanup(mgr.Close)

	h := New(api, mgr, parser, ownerID, time.UTC, logger)
	h.now = func() time.Time { return now }
	return &fixture{h: h, tg: tg, mgr: mgr}
}

type noSessions struct{}

func (noSessions) GetSession(ctx context.Context) (*models.Session, error) { return nil, nil }
func (noSessions) SignIn(ctx context.Context, token string) (*models.Session, error) {
	if token == "good" {
		return &models.Session{UserID: "user-1", Email: "ann@example.com"}, nil
	}
	return nil, errors.New("invalid token")
}
func (noSessions) SignOut(ctx context.Context) error { return nil }

func message(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: ownerID, FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: ownerID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-03 09:30", time.Date(2024, 5, 3, 9, 30, 0, 0, time.UTC)},
		{"2024-05-03T09:30", time.Date(2024, 5, 3, 9, 30, 0, 0, time.UTC)},
		{"2024-05-03", time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)},
		{"06-10 08:00", time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)},
		{"18:00", time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)},
		{"09:00", time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDateTime(tt.in, now, time.UTC)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := parseDateTime("tomorrow", now, time.UTC)
	assert.False(t, ok)
}

func TestParseAddArgs(t *testing.T) {
	e, err := parseAddArgs("Gym | 2024-05-03 17:00 | 18:30 | Exercise", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Gym", e.Title)
	assert.Equal(t, time.Date(2024, 5, 3, 17, 0, 0, 0, time.UTC), e.Start)
	assert.Equal(t, time.Date(2024, 5, 3, 18, 30, 0, 0, time.UTC), e.End)
	assert.Equal(t, "Exercise", e.ExtendedProps.Category)

	e, err = parseAddArgs("Call | 2024-05-03 17:00 | Work", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, e.Start, e.End)
	assert.Equal(t, "Work", e.ExtendedProps.Category)

	_, err = parseAddArgs("", now, time.UTC)
	assert.ErrorIs(t, err, errMissingTitle)
	_, err = parseAddArgs("Gym", now, time.UTC)
	assert.ErrorIs(t, err, errMissingStart)
	_, err = parseAddArgs("Gym | 2024-05-03 17:00 | 2024-05-02 17:00", now, time.UTC)
	assert.ErrorIs(t, err, errEndBeforeStart)
}

func TestIsOwner(t *testing.T) {
	f := newFixture(t, nil)
	assert.True(t, f.h.IsOwner(message("hi")))

	stranger := message("hi")
	stranger.From = &tgbotapi.User{ID: 7}
	assert.False(t, f.h.IsOwner(stranger))
	assert.False(t, f.h.IsOwner(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}))
}

func TestAddDoneDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.h.HandleCommand(ctx, message("/add Gym | 2024-05-03 17:00 | Exercise"))
	assert.Contains(t, f.tg.lastText(t), "Event created")

	events := f.mgr.Events()
	require.Len(t, events, 1)
	ref := events[0].LocalID[:8]

	f.h.HandleCommand(ctx, message("/done "+ref))
	assert.True(t, f.mgr.Events()[0].ExtendedProps.Completion)
	assert.Contains(t, f.tg.lastText(t), "✅")

	f.h.HandleCommand(ctx, message("/delete "+ref))
	assert.Equal(t, "🗑 Deleted Gym", f.tg.lastText(t))
	assert.Empty(t, f.mgr.Events())

	f.h.HandleCommand(ctx, message("/delete "+ref))
	assert.Equal(t, "❌ event not found", f.tg.lastText(t))
}

func TestAddUsage(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), message("/add Gym"))
	assert.True(t, strings.HasPrefix(f.tg.lastText(t), "❌ missing or invalid start time"))
	assert.Empty(t, f.mgr.Events())
}

func TestListingCommands(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.h.HandleCommand(ctx, message("/today"))
	assert.Equal(t, "📅 Today\n\nNo events.", f.tg.lastText(t))

	_, err := f.mgr.Create(ctx, models.Event{Title: "Lunch", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)})
	require.NoError(t, err)

	f.h.HandleCommand(ctx, message("/today"))
	assert.Contains(t, f.tg.lastText(t), "Lunch")
	f.h.HandleCommand(ctx, message("/upcoming"))
	assert.Contains(t, f.tg.lastText(t), "Lunch")
	f.h.HandleCommand(ctx, message("/search lun"))
	assert.Contains(t, f.tg.lastText(t), "Lunch")
	f.h.HandleCommand(ctx, message("/search dinner"))
	assert.Contains(t, f.tg.lastText(t), "No events.")
}

func TestRecommendNeedsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), message("/recommend Gym"))
	assert.Equal(t, "Recommendations need an account, use /login first", f.tg.lastText(t))
	assert.Empty(t, f.mgr.Events())
}

func TestSyncNeedsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), message("/sync"))
	assert.Equal(t, "Not logged in, use /login first", f.tg.lastText(t))
}

func TestLoginDeletesTokenMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), message("/login good"))

	reqs := f.tg.sent()
	require.Len(t, reqs, 2)
	assert.Equal(t, "deleteMessage", reqs[0].method)
	assert.Equal(t, "🔐 Logged in as ann@example.com\nYou have 0 event(s).", reqs[1].text)

	f.h.HandleCommand(context.Background(), message("/login bad"))
	assert.Equal(t, "❌ Login failed: invalid token", f.tg.lastText(t))
}

func TestExportSendsDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), message("/export"))

	reqs := f.tg.sent()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sendDocument", reqs[0].method)
	assert.True(t, reqs[0].file)
}

func TestMessageWithoutAIShowsHelp(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleMessage(context.Background(), message("dentist tomorrow"))
	assert.True(t, strings.HasPrefix(f.tg.lastText(t), "📖 Commands"))
}

func TestAIMessageCreatesEvent(t *testing.T) {
	parser := &fakeParser{draft: &ai.EventDraft{
		Title:      "Dentist",
		Start:      "2024-05-02 10:00",
		End:        "2024-05-02 11:00",
		Category:   "Health",
		Confidence: 0.9,
		AIMessage:  "Booked it.",
	}}
	f := newFixture(t, parser)
	f.h.HandleMessage(context.Background(), message("dentist tomorrow at 10 for an hour"))

	events := f.mgr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Dentist", events[0].Title)
	assert.Equal(t, time.Date(2024, 5, 2, 11, 0, 0, 0, time.UTC), events[0].End)
	assert.Equal(t, "Health", events[0].ExtendedProps.Category)
	assert.True(t, strings.HasPrefix(f.tg.lastText(t), "Booked it.\n\n📅 Event created"))
}

func TestAIMessageLowConfidence(t *testing.T) {
	parser := &fakeParser{draft: &ai.EventDraft{Confidence: 0.2, AIMessage: "Which day?"}}
	f := newFixture(t, parser)
	f.h.HandleMessage(context.Background(), message("dentist"))

	assert.Equal(t, "Which day?", f.tg.lastText(t))
	assert.Empty(t, f.mgr.Events())
}

func TestAIMessageParseError(t *testing.T) {
	f := newFixture(t, &fakeParser{err: errors.New("boom")})
	f.h.HandleMessage(context.Background(), message("dentist"))

	assert.Contains(t, f.tg.lastText(t), "could not understand")
	assert.Empty(t, f.mgr.Events())
}

func TestAIMessageRecommend(t *testing.T) {
	parser := &fakeParser{draft: &ai.EventDraft{Title: "Gym", Recommend: true, Confidence: 0.8}}
	f := newFixture(t, parser)
	f.h.HandleMessage(context.Background(), message("schedule gym like last week"))

	assert.Equal(t, "Recommendations need an account, use /login first", f.tg.lastText(t))
	assert.Empty(t, f.mgr.Events())
}
