// Package telegram is the long-polling transport shell. It translates
// Telegram updates into chat service calls and replies.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/chat"
	"github.com/mosskim/gembot/internal/config"
	"github.com/mosskim/gembot/internal/store"
)

const (
	maxInputLength   = 4000
	maxMessageLength = 4096 // Telegram's hard limit per message
)

type Bot struct {
	api         *tgbotapi.BotAPI
	svc         *chat.Service
	pollTimeout int
	log         *zap.Logger
}

func NewBot(cfg config.Telegram, svc *chat.Service, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	api.Debug = false

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Bot{api: api, svc: svc, pollTimeout: timeout, log: log}, nil
}

// Run polls for updates until ctx is cancelled. Each update is handled on
// its own goroutine; visibility ordering within a chat is the store's job.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("bot started", zap.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Text == "" {
		return
	}
	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg, fmt.Sprintf(
			"Hi %s! Send me any message and I'll answer.\n\nCommands:\n/help — usage\n/clear — wipe this chat's history\n/stats — your usage statistics\n/search <query> — search this chat\n/export [json|text] — download history",
			msg.From.FirstName))
	case "help":
		b.reply(msg, "Send any text message and the assistant replies with the recent conversation as context.\n\n/clear — wipe this chat's stored history\n/stats — message and token statistics\n/search <query> — search this chat (quote for exact phrase)\n/export [json|text] — download this chat's history")
	case "clear":
		b.clearCommand(ctx, msg)
	case "stats":
		b.statsCommand(ctx, msg)
	case "search":
		b.searchCommand(ctx, msg)
	case "export":
		b.exportCommand(ctx, msg)
	default:
		b.reply(msg, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Text) > maxInputLength {
		b.reply(msg, fmt.Sprintf("Message too long, the limit is %d characters.", maxInputLength))
		return
	}

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(typing); err != nil {
		b.log.Debug("send typing action", zap.Error(err))
	}

	answer, err := b.svc.HandleTurn(ctx, chat.Incoming{
		ChatID:      msg.Chat.ID,
		ChatKind:    chatKind(msg.Chat),
		ChatTitle:   chatTitle(msg.Chat),
		UserID:      msg.From.ID,
		DisplayName: displayName(msg.From),
		Text:        msg.Text,
	})
	if err != nil {
		b.log.Error("handle turn",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
		b.reply(msg, "Sorry, something went wrong. Please try again.")
		return
	}

	for _, chunk := range splitMessage(answer, maxMessageLength) {
		b.reply(msg, chunk)
	}
}

func (b *Bot) clearCommand(ctx context.Context, msg *tgbotapi.Message) {
	n, err := b.svc.Clear(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error("clear conversation", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		b.reply(msg, "Could not clear the conversation.")
		return
	}
	b.reply(msg, fmt.Sprintf("Conversation cleared (%d messages removed).", n))
}

func (b *Bot) statsCommand(ctx context.Context, msg *tgbotapi.Message) {
	us, err := b.svc.UserStats(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("user stats", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.reply(msg, "Could not load statistics.")
		return
	}
	cs, err := b.svc.ChatStats(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error("chat stats", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		b.reply(msg, "Could not load statistics.")
		return
	}
	b.reply(msg, fmt.Sprintf(
		"Your messages: %d across %d chats\nTokens: %d prompt, %d completion\n\nThis chat: %d messages from %d users",
		us.MessageCount, us.ChatsParticipatedIn,
		us.TotalPromptTokens, us.TotalCompletionTokens,
		cs.MessageCount, cs.UserCount))
}

func (b *Bot) searchCommand(ctx context.Context, msg *tgbotapi.Message) {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		b.reply(msg, "Usage: /search <query> (wrap in quotes for an exact phrase)")
		return
	}
	results, err := b.svc.Search(ctx, query, msg.Chat.ID, 10)
	if err != nil {
		b.reply(msg, "Search failed: "+userFacing(err))
		return
	}
	if len(results) == 0 {
		b.reply(msg, "No matches.")
		return
	}
	var sb strings.Builder
	for _, m := range results {
		body := m.Body
		if len(body) > 120 {
			body = body[:120] + "…"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, body)
	}
	b.reply(msg, sb.String())
}

func (b *Bot) exportCommand(ctx context.Context, msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		arg = "text"
	}
	format, ok := store.ParseExportFormat(arg)
	if !ok {
		b.reply(msg, "Unknown format. Use /export json or /export text.")
		return
	}
	payload, err := b.svc.Export(ctx, msg.Chat.ID, format)
	if err != nil {
		b.reply(msg, "Export failed: "+userFacing(err))
		return
	}
	name := fmt.Sprintf("history_%d.%s", msg.Chat.ID, format)
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: name, Bytes: payload})
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error("send export", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	if _, err := b.api.Send(out); err != nil {
		b.log.Error("send reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func userFacing(err error) string {
	switch {
	case errors.Is(err, store.ErrStoreBusy):
		return "the store is busy, try again"
	case errors.Is(err, store.ErrInvalidArgument):
		return "invalid input"
	default:
		return "internal error"
	}
}

func chatKind(c *tgbotapi.Chat) store.ChatKind {
	if c.IsPrivate() {
		return store.ChatDirect
	}
	return store.ChatGroup
}

func chatTitle(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return c.UserName
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		chunks = append(chunks, text[:limit])
		text = text[limit:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
