package handlers

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/Timeline/internal/ai"
	"github.com/hray3182/Timeline/internal/format"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

// Service is the part of the event manager the chat commands drive
type Service interface {
	Events() []models.Event
	Today(loc *time.Location) []models.Event
	Upcoming(within time.Duration) []models.Event
	Search(query string) []models.Event
	Create(ctx context.Context, event models.Event) (models.Event, error)
	CreateRecommended(ctx context.Context, seed models.Event) (models.Event, error)
	Edit(ctx context.Context, ref string, patch models.EventPatch) (models.Event, error)
	Delete(ctx context.Context, ref string) error
	Sync(ctx context.Context) (int, error)
	Session(ctx context.Context) *models.Session
	SignIn(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context) error
}

// EventParser turns free text into an event draft
type EventParser interface {
	ParseEvent(ctx context.Context, userMessage string) (*ai.EventDraft, error)
}

type Handlers struct {
	api     *tgbotapi.BotAPI
	svc     Service
	ai      EventParser
	ownerID int64
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// New creates the command handlers. parser may be nil when no AI is configured.
func New(api *tgbotapi.BotAPI, svc Service, parser EventParser, ownerID int64, loc *time.Location, logger *zap.Logger) *Handlers {
	return &Handlers{
		api:     api,
		svc:     svc,
		ai:      parser,
		ownerID: ownerID,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// IsOwner reports whether msg comes from the calendar owner
func (h *Handlers) IsOwner(msg *tgbotapi.Message) bool {
	return msg.From != nil && msg.From.ID == h.ownerID
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "add":
		h.handleAdd(ctx, msg)
	case "recommend":
		h.handleRecommend(ctx, msg)
	case "events":
		h.sendMessage(msg.Chat.ID, format.Agenda("All events", h.svc.Search(""), h.loc))
	case "today":
		h.sendMessage(msg.Chat.ID, format.Agenda("Today", h.svc.Today(h.loc), h.loc))
	case "upcoming":
		h.sendMessage(msg.Chat.ID, format.Agenda("Upcoming", h.svc.Upcoming(0), h.loc))
	case "search":
		h.handleSearch(ctx, msg)
	case "done":
		h.handleDone(ctx, msg)
	case "delete":
		h.handleDelete(ctx, msg)
	case "sync":
		h.handleSync(ctx, msg)
	case "login":
		h.handleLogin(ctx, msg)
	case "logout":
		h.handleLogout(ctx, msg)
	case "export":
		h.handleExport(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.handleHelp(ctx, msg)
		return
	}
	h.handleAIMessage(ctx, msg)
}

// sendMessage converts the markdown in text to entities and sends it
func (h *Handlers) sendMessage(chatID int64, text string) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	text := "👋 Hi " + msg.From.FirstName + "!\n\n" +
		"I am **Timeline**, your calendar. Tell me about an event in plain words, " +
		"for example \"dentist next Tuesday at 10\", or use /help for the commands."
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 **Commands**

**Events**
/add <title> | <YYYY-MM-DD HH:MM> [| <end>] [| <category>]
/recommend <title> [| <category>] - schedule a follow-up like a past event
/events - all events
/today - today's events
/upcoming - events from now on
/search <keyword> - find by title
/done <ref> - mark completed
/delete <ref> - delete

**Account**
/login <access token> - connect to your account
/logout - disconnect and clear this device
/sync - upload events created offline
/export - download events.ics

<ref> is the code shown in front of each event.`
	h.sendMessage(msg.Chat.ID, text)
}
