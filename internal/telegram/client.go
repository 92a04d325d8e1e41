package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when a call needs the API session before
// Connect has succeeded.
var ErrNotConnected = errors.New("telegram: not connected")

// pollSlack is added on top of the long-poll window so the HTTP timeout
// fires after the server-side one, not before.
const pollSlack = 10 * time.Second

// shortTimeout bounds every non-polling API call.
const shortTimeout = 30 * time.Second

// Sent acknowledges a delivered outbound message.
type Sent struct {
	MessageID int64
	Timestamp int64 // unix millis
}

// MenuOption is one selectable row of an inline menu. Token is the opaque
// value echoed back in the resulting Selection.
type MenuOption struct {
	Label string
	Token string
}

// FileUpload carries outbound file bytes.
type FileUpload struct {
	Name    string
	Caption string
	Data    []byte
}

// splitTimeoutClient routes long-poll requests to a client whose timeout
// exceeds the poll window and everything else to a short-timeout client.
// The underlying API package drives all calls through a single HTTPClient,
// so the split happens here rather than per call site. Long-poll requests
// additionally pick up the caller's context, letting shutdown abort a poll
// mid-window rather than wait it out.
type splitTimeoutClient struct {
	poll    *http.Client
	short   *http.Client
	pollCtx func() context.Context
}

func (c *splitTimeoutClient) Do(req *http.Request) (*http.Response, error) {
	if isLongPoll(req) {
		if ctx := c.pollCtx(); ctx != nil {
			req = req.WithContext(ctx)
		}
		return c.poll.Do(req)
	}
	return c.short.Do(req)
}

func isLongPoll(req *http.Request) bool {
	return strings.HasSuffix(req.URL.Path, "/getUpdates")
}

// Client wraps the Bot API. Construction is offline; Connect performs the
// authenticated handshake so callers control when the network is touched.
// The sender and the poll loop run on different goroutines, so the API
// handle sits behind the mutex.
type Client struct {
	token      string
	pollWindow time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	bot     *tgbotapi.BotAPI
	pollCtx context.Context
}

// NewClient prepares a client for the given bot token. pollWindow is the
// long-poll duration the caller will pass to Updates.
func NewClient(token string, pollWindow time.Duration, logger *zap.Logger) *Client {
	return &Client{
		token:      token,
		pollWindow: pollWindow,
		logger:     logger.Named("telegram"),
	}
}

// Connect authenticates the token, clears any configured webhook (webhooks
// and long polling are mutually exclusive) and registers the command menu.
// It returns the bot's username. Safe to call again after failures.
func (c *Client) Connect(ctx context.Context) (string, error) {
	httpClient := &splitTimeoutClient{
		poll:    &http.Client{Timeout: c.pollWindow + pollSlack},
		short:   &http.Client{Timeout: shortTimeout},
		pollCtx: c.currentPollCtx,
	}

	bot, err := tgbotapi.NewBotAPIWithClient(c.token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return "", fmt.Errorf("authenticate bot: %w", err)
	}

	// Keep queued updates: the persisted cursor decides where to resume.
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		return "", fmt.Errorf("delete webhook: %w", err)
	}

	if _, err := bot.Request(commandMenu()); err != nil {
		// Not worth failing the handshake over; commands are a convenience.
		c.logger.Warn("register commands failed", zap.Error(err))
	}

	c.mu.Lock()
	c.bot = bot
	c.mu.Unlock()
	c.logger.Info("connected", zap.String("bot", bot.Self.UserName))
	return bot.Self.UserName, nil
}

func (c *Client) api() *tgbotapi.BotAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot
}

func commandMenu() tgbotapi.SetMyCommandsConfig {
	return tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Connect with a law office"},
		tgbotapi.BotCommand{Command: "help", Description: "Show available commands"},
		tgbotapi.BotCommand{Command: "status", Description: "Show your request status"},
		tgbotapi.BotCommand{Command: "history", Description: "Show recent conversation history"},
	)
}

// Updates long-polls for updates at or after offset. The call blocks up to
// the poll window; cancelling ctx aborts the request immediately.
func (c *Client) Updates(ctx context.Context, offset int64, limit int) ([]Update, error) {
	bot := c.api()
	if bot == nil {
		return nil, ErrNotConnected
	}

	c.setPollCtx(ctx)
	defer c.setPollCtx(nil)

	raw, err := bot.GetUpdates(tgbotapi.UpdateConfig{
		Offset:  int(offset),
		Limit:   limit,
		Timeout: int(c.pollWindow.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	updates := make([]Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, ParseUpdate(u))
	}
	return updates, nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (Sent, error) {
	bot := c.api()
	if bot == nil {
		return Sent{}, ErrNotConnected
	}
	sent, err := bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return Sent{}, fmt.Errorf("send text: %w", err)
	}
	return sentFrom(sent), nil
}

// SendFile delivers file bytes as a document with an optional caption.
func (c *Client) SendFile(ctx context.Context, chatID int64, file FileUpload) (Sent, error) {
	bot := c.api()
	if bot == nil {
		return Sent{}, ErrNotConnected
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: file.Name, Bytes: file.Data})
	doc.Caption = file.Caption
	sent, err := bot.Send(doc)
	if err != nil {
		return Sent{}, fmt.Errorf("send file: %w", err)
	}
	return sentFrom(sent), nil
}

// SendMenu delivers a prompt with one inline button per option.
func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, options []MenuOption) error {
	bot := c.api()
	if bot == nil {
		return ErrNotConnected
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = menuMarkup(options)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	return nil
}

func menuMarkup(options []MenuOption) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Token),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// AnswerSelection acknowledges a menu choice so the client stops showing a
// spinner. With alert set the text pops up instead of toasting.
func (c *Client) AnswerSelection(ctx context.Context, callbackID, text string, alert bool) error {
	bot := c.api()
	if bot == nil {
		return ErrNotConnected
	}
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := bot.Request(cb); err != nil {
		return fmt.Errorf("answer selection: %w", err)
	}
	return nil
}

func (c *Client) setPollCtx(ctx context.Context) {
	c.mu.Lock()
	c.pollCtx = ctx
	c.mu.Unlock()
}

func (c *Client) currentPollCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollCtx
}

func sentFrom(m tgbotapi.Message) Sent {
	return Sent{
		MessageID: int64(m.MessageID),
		Timestamp: int64(m.Date) * 1000,
	}
}
