package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/Timeline/internal/bot/handlers"
	"github.com/hray3182/Timeline/internal/format"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
	ownerID  int64
	loc      *time.Location
	logger   *zap.Logger
}

// New wraps an authorized API client. Only messages from ownerID are served.
func New(api *tgbotapi.BotAPI, svc handlers.Service, parser handlers.EventParser, ownerID int64, loc *time.Location, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		handlers: handlers.New(api, svc, parser, ownerID, loc, logger),
		ownerID:  ownerID,
		loc:      loc,
		logger:   logger,
	}
}

// Connect authorizes token against the Telegram API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return api, nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Authorized on account", zap.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	if !b.handlers.IsOwner(update.Message) {
		b.logger.Debug("Ignoring message from stranger", zap.Int64("chat_id", update.Message.Chat.ID))
		return
	}

	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}

	b.handlers.HandleMessage(ctx, update.Message)
}

// NotifyUpcoming sends the owner a reminder that e starts soon.
func (b *Bot) NotifyUpcoming(ctx context.Context, e models.Event, now time.Time) error {
	parsed := format.ParseMarkdown(format.Reminder(e, now, b.loc))
	msg := tgbotapi.NewMessage(b.ownerID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}
