package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

const helpText = `Available commands:

/start - connect with a law office
/help - show this help
/status - show your request status
/history - show recent conversation history

You can send text, documents, photos, audio, video, voice messages and stickers. Everything you send is delivered to your office.`

const historyDefault = 10
const historyMax = 25

func (e *Engine) handleCommand(ctx context.Context, conv *store.Conversation, in *telegram.Inbound) {
	e.logger.Info("command received",
		zap.String("command", in.Command), zap.String("conversation", conv.ID))

	// Only command replies are rate limited; regular ingestion is not. The
	// command message itself is already part of the conversation record.
	senderKey := strconv.FormatInt(in.SenderID, 10)
	if in.SenderID == 0 {
		senderKey = strconv.FormatInt(in.ChatID, 10)
	}
	if !e.limiter.Allow(senderKey) {
		e.logger.Warn("rate limited", zap.String("sender", senderKey))
		notice := "Too many messages. Please slow down."
		if resetAt, ok := e.limiter.ResetAt(senderKey); ok {
			notice = fmt.Sprintf("Too many messages. Please try again after %s.", resetAt.Format("15:04:05"))
		}
		e.reply(ctx, conv, notice)
		return
	}

	switch in.Command {
	case "start":
		e.commandStart(ctx, conv)
	case "help":
		e.reply(ctx, conv, helpText)
	case "status":
		e.commandStatus(ctx, conv)
	case "history":
		e.commandHistory(ctx, conv, in.CommandArgs)
	default:
		e.reply(ctx, conv, "Unknown command. Send /help to see what I can do.")
	}
}

func (e *Engine) commandStart(ctx context.Context, conv *store.Conversation) {
	if conv.Bound() {
		office, err := e.db.GetOffice(conv.OfficeID)
		if err == nil && office != nil {
			e.reply(ctx, conv, "Welcome back. You are connected to "+office.Name+". Just write your message here.")
			return
		}
		e.reply(ctx, conv, "Welcome back. Just write your message here.")
		return
	}
	e.beginSelection(ctx, conv)
}

func (e *Engine) commandStatus(ctx context.Context, conv *store.Conversation) {
	var b strings.Builder

	if conv.Bound() {
		office, err := e.db.GetOffice(conv.OfficeID)
		if err == nil && office != nil {
			fmt.Fprintf(&b, "Your request is assigned to %s.\n", office.Name)
		} else {
			b.WriteString("Your request is assigned to an office.\n")
		}
	} else {
		b.WriteString("Your request is not assigned yet. Send /start to choose an office.\n")
	}

	h := e.monitor.Health()
	if h.IsConnected {
		b.WriteString("Relay: online")
	} else {
		b.WriteString("Relay: reconnecting")
	}
	e.mu.Lock()
	name := e.botName
	e.mu.Unlock()
	if name != "" {
		fmt.Fprintf(&b, " (@%s)", name)
	}
	b.WriteString("\n")

	if msgs, err := e.db.MessageCount(); err == nil {
		convs, err := e.db.ConversationCount()
		if err == nil {
			fmt.Fprintf(&b, "\nStatistics:\n- Messages: %d\n- Conversations: %d", msgs, convs)
		}
	}

	e.reply(ctx, conv, b.String())
}

func (e *Engine) commandHistory(ctx context.Context, conv *store.Conversation, args string) {
	limit := historyDefault
	if args != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > historyMax {
		limit = historyMax
	}

	msgs, err := e.db.ListRecentMessages(conv.ID, limit, 0)
	if err != nil {
		e.fail("list history", err)
		return
	}
	if len(msgs) == 0 {
		e.reply(ctx, conv, "No messages yet.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d messages:\n", len(msgs))
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Format("02.01 15:04")
		name := m.SenderName
		if name == "" {
			name = "Office"
		}
		fmt.Fprintf(&b, "\n[%s] %s: %s", ts, name, truncate(m.Content, 80))
	}
	e.reply(ctx, conv, b.String())
}

func (e *Engine) reply(ctx context.Context, conv *store.Conversation, text string) {
	if _, err := e.transport.SendText(ctx, externalChatID(conv), text); err != nil {
		e.logger.Error("command reply failed", zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
