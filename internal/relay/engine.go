package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/cache"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/config"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/health"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
)

// ErrAlreadyRunning is returned by Start when the poll loop is active.
var ErrAlreadyRunning = errors.New("relay: engine already running")

// seedMessages bounds how much history is loaded per conversation when the
// cache is rebuilt from the store.
const seedMessages = 100

// seedConversations bounds how many conversations are rebuilt.
const seedConversations = 50

// Engine owns the inbound pipeline: it polls the transport for updates,
// normalizes and deduplicates them into the store and cache, and publishes
// change events on the bus. One engine instance runs one poll loop; the
// process-wide lock keeps a second instance from starting.
type Engine struct {
	cfg       config.Config
	transport Transport
	db        *store.DB
	cache     *cache.Cache
	monitor   *health.Monitor
	bus       *bus.Bus
	logger    *zap.Logger
	limiter   *rateLimiter

	reconnectCh chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	botName string
}

// New assembles an engine. Nothing touches the network until Start.
func New(cfg config.Config, t Transport, db *store.DB, c *cache.Cache, m *health.Monitor, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		transport:   t,
		db:          db,
		cache:       c,
		monitor:     m,
		bus:         b,
		logger:      logger.Named("relay"),
		limiter:     newRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window()),
		reconnectCh: make(chan struct{}, 1),
	}
}

// Start launches the poll loop in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	go e.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to exit. An in-flight long poll is
// aborted, so this returns promptly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	if e.monitor.Health().IsConnected {
		e.notifyAdmin(context.Background(), "LegalFlow relay shutting down")
	}
	cancel()
	<-done
}

// Reconnect asks a degraded engine to attempt a fresh connection. No-op when
// the engine is not waiting in degraded mode; the signal is buffered so
// callers never block.
func (e *Engine) Reconnect() {
	select {
	case e.reconnectCh <- struct{}{}:
	default:
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	e.seedCache()

	for {
		if ctx.Err() != nil {
			return
		}
		if e.establish(ctx) {
			e.poll(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if !e.awaitReconnect(ctx) {
			return
		}
		e.monitor.Reset()
	}
}

// establish connects with backoff until success or degradation. Reports
// whether polling may begin.
func (e *Engine) establish(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		name, err := e.transport.Connect(ctx)
		if err == nil {
			e.mu.Lock()
			e.botName = name
			e.mu.Unlock()
			e.monitor.RecordSuccess()
			e.logger.Info("transport connected", zap.String("bot", name))
			e.notifyAdmin(ctx, "LegalFlow relay online")
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		e.logger.Warn("connect failed", zap.Error(err))
		d := e.monitor.RecordFailure(err, telegram.IsFatal(err))
		if d.Degrade {
			e.enterDegraded(err)
			return false
		}
		if !e.sleep(ctx, d.Delay) {
			return false
		}
	}
}

// poll fetches and processes update batches until cancellation or
// degradation. Updates are handled strictly in sequence-id order and the
// cursor is persisted after each one, so a crash replays at most the update
// in flight.
func (e *Engine) poll(ctx context.Context) {
	cursor, err := e.db.Cursor()
	if err != nil {
		e.logger.Error("load cursor", zap.Error(err))
	}

	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := e.transport.Updates(ctx, cursor+1, e.cfg.Poll.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("poll failed", zap.Error(err))
			d := e.monitor.RecordFailure(err, telegram.IsFatal(err))
			if d.Degrade {
				e.enterDegraded(err)
				return
			}
			if !e.sleep(ctx, d.Delay) {
				return
			}
			continue
		}
		e.monitor.RecordSuccess()

		sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
		for _, u := range updates {
			if ctx.Err() != nil {
				return
			}
			e.process(ctx, u)
			if u.ID > cursor {
				cursor = u.ID
				if err := e.db.SetCursor(cursor); err != nil {
					e.logger.Error("persist cursor", zap.Error(err))
				}
			}
		}
	}
}

// enterDegraded reloads recent history from the store so reads keep working
// without live connectivity, then surfaces the failure once.
func (e *Engine) enterDegraded(cause error) {
	e.logger.Error("entering degraded mode", zap.Error(cause))
	e.seedCache()
	notice := "live connectivity unavailable"
	if cause != nil {
		notice += ": " + cause.Error()
	}
	e.publishError(notice)
}

func (e *Engine) awaitReconnect(ctx context.Context) bool {
	e.logger.Info("degraded, waiting for reconnect request")
	select {
	case <-ctx.Done():
		return false
	case <-e.reconnectCh:
		e.logger.Info("reconnect requested")
		return true
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// seedCache rebuilds cache state from durable records. Called at startup and
// when entering degraded mode.
func (e *Engine) seedCache() {
	convs, err := e.db.ListRecentConversations(seedConversations)
	if err != nil {
		e.logger.Error("seed cache: list conversations", zap.Error(err))
		return
	}
	limit := e.cfg.Cache.MaxPerConversation
	if limit <= 0 || limit > seedMessages {
		limit = seedMessages
	}
	for _, conv := range convs {
		msgs, err := e.db.ListRecentMessages(conv.ID, limit, 0)
		if err != nil {
			e.logger.Error("seed cache: list messages",
				zap.String("conversation", conv.ID), zap.Error(err))
			continue
		}
		e.cache.Seed(conv, msgs)
	}
	if len(convs) > 0 {
		e.logger.Info("cache seeded from store", zap.Int("conversations", len(convs)))
	}
}

func (e *Engine) notifyAdmin(ctx context.Context, text string) {
	if e.cfg.Telegram.AdminChatID == 0 {
		return
	}
	if _, err := e.transport.SendText(ctx, e.cfg.Telegram.AdminChatID, text); err != nil {
		e.logger.Debug("admin notice failed", zap.Error(err))
	}
}

// Chats returns cached conversation summaries, most recent first.
func (e *Engine) Chats() []cache.Chat {
	return e.cache.Chats()
}

// Messages returns a conversation's messages, timestamp ascending. The
// first page is served from cache when it holds enough; older pages and
// cold conversations read from the store.
func (e *Engine) Messages(conversationID string, limit, offset int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset == 0 {
		cached := e.cache.Messages(conversationID)
		if len(cached) >= limit {
			return cached[len(cached)-limit:], nil
		}
	}
	return e.db.ListRecentMessages(conversationID, limit, offset)
}

// MarkRead zeroes a conversation's unread counter and republishes the total.
func (e *Engine) MarkRead(conversationID string) error {
	if err := e.db.ResetUnread(conversationID); err != nil {
		return err
	}
	e.cache.SetUnread(conversationID, 0)
	e.publishUnread()
	return nil
}

// Search runs a full-text query over stored messages.
func (e *Engine) Search(query, conversationID string, limit int) ([]store.SearchResult, error) {
	return e.db.SearchMessages(query, conversationID, limit)
}

// Health returns the connection health snapshot.
func (e *Engine) Health() health.Snapshot {
	return e.monitor.Health()
}

func (e *Engine) publishNew(msg store.Message) {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageNew,
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

func (e *Engine) publishUpdated(msg store.Message) {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpdated,
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

func (e *Engine) publishUnread() {
	total, err := e.db.TotalUnread()
	if err != nil {
		e.logger.Error("total unread", zap.Error(err))
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindUnread,
		Timestamp: time.Now(),
		Payload:   bus.UnreadChange{Total: total},
	})
}

func (e *Engine) publishError(message string) {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindError,
		Timestamp: time.Now(),
		Payload:   bus.ErrorNotice{Message: message},
	})
}

// fail logs a pipeline error and surfaces it without stopping the loop.
func (e *Engine) fail(op string, err error) {
	e.logger.Error(op, zap.Error(err))
	e.publishError(op + ": " + err.Error())
}
