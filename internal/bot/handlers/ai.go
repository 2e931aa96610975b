package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/Timeline/internal/ai"
	"github.com/hray3182/Timeline/internal/format"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

const minConfidence = 0.5

func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message) {
	h.logger.Debug("Incoming message", zap.Int64("from", msg.From.ID), zap.String("text", msg.Text))

	draft, err := h.ai.ParseEvent(ctx, msg.Text)
	if err != nil {
		h.logger.Warn("Failed to parse event", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Sorry, I could not understand that. Try describing the event more clearly, or see /help.")
		return
	}

	h.logger.Debug("Parsed event",
		zap.String("title", draft.Title),
		zap.String("start", draft.Start),
		zap.Bool("recommend", draft.Recommend),
		zap.Float64("confidence", draft.Confidence),
		zap.String("raw", draft.RawResponse))

	if draft.Confidence < minConfidence {
		response := "I am not sure which event you mean, could you say it more clearly?"
		if draft.AIMessage != "" {
			response = draft.AIMessage
		}
		h.sendMessage(msg.Chat.ID, response)
		return
	}

	event, err := h.eventFromDraft(draft)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ "+err.Error())
		return
	}

	if draft.Recommend {
		h.createRecommended(ctx, msg.Chat.ID, event)
		return
	}

	created, err := h.svc.Create(ctx, event)
	if err != nil {
		h.logger.Error("Failed to create event", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to create the event, please try again later")
		return
	}

	reply := "📅 Event created\n" + format.EventLine(created, h.loc)
	if draft.AIMessage != "" {
		reply = draft.AIMessage + "\n\n" + reply
	}
	h.sendMessage(msg.Chat.ID, reply)
}

// eventFromDraft converts an AI draft into an event. Recommended drafts
// only need a title.
func (h *Handlers) eventFromDraft(draft *ai.EventDraft) (models.Event, error) {
	if draft.Title == "" {
		return models.Event{}, errMissingTitle
	}

	event := models.Event{
		Title: draft.Title,
		ExtendedProps: models.ExtendedProps{
			Description: draft.Description,
			Category:    draft.Category,
			Priority:    draft.Priority,
		},
	}
	if draft.Recommend {
		return event, nil
	}

	start, ok := parseDateTime(draft.Start, h.now(), h.loc)
	if !ok {
		return models.Event{}, fmt.Errorf("%w: %q", errMissingStart, draft.Start)
	}
	event.Start, event.End = start, start

	if draft.End != "" {
		end, ok := parseDateTime(draft.End, start, h.loc)
		if !ok {
			return models.Event{}, fmt.Errorf("invalid end time %q", draft.End)
		}
		if end.Before(start) {
			return models.Event{}, errEndBeforeStart
		}
		event.End = end
	}
	return event, nil
}
