package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/Timeline/internal/export"
	"github.com/hray3182/Timeline/internal/format"
	"github.com/hray3182/Timeline/internal/manager"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

var (
	errMissingTitle   = errors.New("missing title")
	errMissingStart   = errors.New("missing or invalid start time, use YYYY-MM-DD HH:MM")
	errEndBeforeStart = errors.New("end must not be before start")
	errAmbiguousRef   = errors.New("more than one event matches, use a longer ref")
)

// parseDateTime accepts a full date-time, a date, a month-day time or a bare
// time, which means its next occurrence.
func parseDateTime(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	now = now.In(loc)
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		"01-02 15:04",
		"15:04",
	}

	for _, layout := range formats {
		t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc)
		if err != nil {
			continue
		}
		switch layout {
		case "15:04":
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
			if t.Before(now) {
				t = t.AddDate(0, 0, 1)
			}
		case "01-02 15:04":
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}

func splitArgs(args string) []string {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseAddArgs reads "<title> | <start> [| <end>] [| <category>]".
func parseAddArgs(args string, now time.Time, loc *time.Location) (models.Event, error) {
	parts := splitArgs(args)
	if parts[0] == "" {
		return models.Event{}, errMissingTitle
	}
	if len(parts) < 2 {
		return models.Event{}, errMissingStart
	}

	start, ok := parseDateTime(parts[1], now, loc)
	if !ok {
		return models.Event{}, errMissingStart
	}
	event := models.Event{Title: parts[0], Start: start, End: start}

	rest := parts[2:]
	if len(rest) > 0 {
		if end, ok := parseDateTime(rest[0], start, loc); ok {
			if end.Before(start) {
				return models.Event{}, errEndBeforeStart
			}
			event.End = end
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		event.ExtendedProps.Category = rest[0]
	}
	return event, nil
}

// resolveRef finds the event whose reference starts with prefix.
func (h *Handlers) resolveRef(prefix string) (models.Event, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return models.Event{}, manager.ErrNotFound
	}

	var found []models.Event
	for _, e := range h.svc.Events() {
		if strings.HasPrefix(e.ID, prefix) || strings.HasPrefix(e.LocalID, prefix) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return models.Event{}, manager.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return models.Event{}, errAmbiguousRef
	}
}

func (h *Handlers) handleAdd(ctx context.Context, msg *tgbotapi.Message) {
	event, err := parseAddArgs(msg.CommandArguments(), h.now(), h.loc)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error()+"\nUsage: /add <title> | <YYYY-MM-DD HH:MM> [| <end>] [| <category>]")
		return
	}

	created, err := h.svc.Create(ctx, event)
	if err != nil {
		h.logger.Error("Failed to create event", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to create the event, please try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, "📅 Event created\n"+format.EventLine(created, h.loc))
}

func (h *Handlers) handleRecommend(ctx context.Context, msg *tgbotapi.Message) {
	parts := splitArgs(msg.CommandArguments())
	if parts[0] == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /recommend <title> [| <category>]")
		return
	}
	seed := models.Event{Title: parts[0]}
	if len(parts) > 1 {
		seed.ExtendedProps.Category = parts[1]
	}

	h.createRecommended(ctx, msg.Chat.ID, seed)
}

func (h *Handlers) createRecommended(ctx context.Context, chatID int64, seed models.Event) {
	rec, err := h.svc.CreateRecommended(ctx, seed)
	switch {
	case errors.Is(err, models.ErrNoSession):
		h.sendMessage(chatID, "Recommendations need an account, use /login first")
	case errors.Is(err, manager.ErrNoSimilarEvent):
		h.sendMessage(chatID, "🤔 No similar past event found for \""+seed.Title+"\"")
	case err != nil:
		h.logger.Warn("Recommendation failed", zap.Error(err))
		h.sendMessage(chatID, "Failed to recommend an event, please try again later")
	default:
		h.sendMessage(chatID, "✨ Recommended event\n"+format.EventLine(rec, h.loc))
	}
}

func (h *Handlers) handleSearch(ctx context.Context, msg *tgbotapi.Message) {
	keyword := strings.TrimSpace(msg.CommandArguments())
	if keyword == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /search <keyword>")
		return
	}
	h.sendMessage(msg.Chat.ID, format.Agenda(fmt.Sprintf("Events matching \"%s\"", keyword), h.svc.Search(keyword), h.loc))
}

func (h *Handlers) handleDone(ctx context.Context, msg *tgbotapi.Message) {
	event, err := h.resolveRef(msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error())
		return
	}

	done := true
	updated, err := h.svc.Edit(ctx, event.Ref(), models.EventPatch{Completion: &done})
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error())
		return
	}
	h.sendMessage(msg.Chat.ID, format.EventLine(updated, h.loc))
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	event, err := h.resolveRef(msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error())
		return
	}

	if err := h.svc.Delete(ctx, event.Ref()); err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error())
		return
	}
	h.sendMessage(msg.Chat.ID, "🗑 Deleted **"+event.Title+"**")
}

func (h *Handlers) handleSync(ctx context.Context, msg *tgbotapi.Message) {
	n, err := h.svc.Sync(ctx)
	if errors.Is(err, models.ErrNoSession) {
		h.sendMessage(msg.Chat.ID, "Not logged in, use /login first")
		return
	}
	if err != nil {
		h.logger.Warn("Sync failed", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Sync failed, please try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🔄 Synced %d event(s)", n))
}

func (h *Handlers) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  "events.ics",
		Bytes: []byte(export.ICS(h.svc.Events(), h.now())),
	})
	if _, err := h.api.Send(doc); err != nil {
		h.logger.Warn("Failed to send export", zap.Error(err))
	}
}
