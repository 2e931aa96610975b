package handlers

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (h *Handlers) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	token := strings.TrimSpace(msg.CommandArguments())

	// The token should not stay in the chat history
	if token != "" {
		if _, err := h.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
			h.logger.Warn("Failed to delete login message", zap.Error(err))
		}
	}
	if token == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /login <access token>")
		return
	}

	session, err := h.svc.SignIn(ctx, token)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Login failed: "+err.Error())
		return
	}

	who := session.Email
	if who == "" {
		who = session.UserID
	}
	h.sendMessage(msg.Chat.ID, "🔐 Logged in as "+who+"\nYou have "+strconv.Itoa(len(h.svc.Events()))+" event(s).")
}

func (h *Handlers) handleLogout(ctx context.Context, msg *tgbotapi.Message) {
	if err := h.svc.Logout(ctx); err != nil {
		h.logger.Error("Logout failed", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Logout failed, please try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, "👋 Logged out, events on this device were cleared")
}
