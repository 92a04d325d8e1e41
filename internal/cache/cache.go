package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
)

// Chat is the UI-facing conversation summary, derived from cached messages.
// Never a source of truth; rebuilt from the store on restart.
type Chat struct {
	ID             string // external chat identifier
	ConversationID string
	Name           string
	LastMessage    string
	UnreadCount    int
	LastActivity   int64 // unix millis
}

type entry struct {
	chat     Chat
	messages []store.Message
	touched  time.Time
}

// Cache holds recent messages per conversation for fast UI reads. Lists stay
// sorted by timestamp ascending across every insert and update. A periodic
// sweep evicts old entries; eviction bounds memory and never touches the
// database.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]*entry // keyed by conversation id
	retention   time.Duration
	maxMessages int
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a cache. retention is how long messages stay cached after
// their timestamp; maxMessages caps each conversation's list, zero means
// unbounded.
func New(retention time.Duration, maxMessages int, logger *zap.Logger) *Cache {
	return &Cache{
		entries:     make(map[string]*entry),
		retention:   retention,
		maxMessages: maxMessages,
		logger:      logger.Named("cache"),
		now:         time.Now,
	}
}

// Track ensures a summary exists for the conversation and refreshes its
// name and unread count from the durable record.
func (c *Cache) Track(conv store.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensure(conv)
	e.chat.Name = conv.Name
	e.chat.UnreadCount = conv.UnreadCount
	e.touched = c.now()
}

// Insert adds a message into its conversation's list, keeping timestamp
// order, and refreshes the summary. Overflow beyond the size cap drops the
// oldest cached messages.
func (c *Cache) Insert(conv store.Conversation, msg store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensure(conv)
	e.messages = insertSorted(e.messages, msg)
	if c.maxMessages > 0 && len(e.messages) > c.maxMessages {
		trimmed := make([]store.Message, c.maxMessages)
		copy(trimmed, e.messages[len(e.messages)-c.maxMessages:])
		e.messages = trimmed
	}
	e.refreshSummary()
	e.touched = c.now()
}

// Update replaces a cached message in place, identified by its id, and
// re-sorts if the edit moved its timestamp. Reports whether the message was
// cached at all.
func (c *Cache) Update(conversationID string, msg store.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[conversationID]
	if e == nil {
		return false
	}
	for i := range e.messages {
		if e.messages[i].ID != msg.ID {
			continue
		}
		e.messages = append(e.messages[:i], e.messages[i+1:]...)
		e.messages = insertSorted(e.messages, msg)
		e.refreshSummary()
		e.touched = c.now()
		return true
	}
	return false
}

// Seed replaces a conversation's cached state wholesale from durable
// records. Used on startup and when entering degraded mode so the UI keeps
// history without live connectivity.
func (c *Cache) Seed(conv store.Conversation, msgs []store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensure(conv)
	e.chat.Name = conv.Name
	e.chat.UnreadCount = conv.UnreadCount
	e.messages = make([]store.Message, len(msgs))
	copy(e.messages, msgs)
	sort.SliceStable(e.messages, func(i, j int) bool {
		return e.messages[i].Timestamp < e.messages[j].Timestamp
	})
	e.refreshSummary()
	e.touched = c.now()
}

// Messages returns a copy of the conversation's cached list, timestamp
// ascending. Nil when nothing is cached.
func (c *Cache) Messages(conversationID string) []store.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entries[conversationID]
	if e == nil || len(e.messages) == 0 {
		return nil
	}
	out := make([]store.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Has reports whether the conversation has cached messages.
func (c *Cache) Has(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.entries[conversationID]
	return e != nil && len(e.messages) > 0
}

// Chats returns all summaries, most recently active first.
func (c *Cache) Chats() []Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Chat, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.chat)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity > out[j].LastActivity
	})
	return out
}

// IncrementUnread bumps the cached unread counter.
func (c *Cache) IncrementUnread(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[conversationID]; e != nil {
		e.chat.UnreadCount++
	}
}

// SetUnread overwrites the cached unread counter.
func (c *Cache) SetUnread(conversationID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[conversationID]; e != nil {
		e.chat.UnreadCount = n
	}
}

// Sweep evicts messages older than the retention window and drops
// conversations that have been idle past it with nothing cached. Returns
// evicted message and dropped conversation counts.
func (c *Cache) Sweep() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.retention)
	cutoffMillis := cutoff.UnixMilli()

	evicted, dropped := 0, 0
	for id, e := range c.entries {
		kept := e.messages[:0]
		for _, m := range e.messages {
			if m.Timestamp >= cutoffMillis {
				kept = append(kept, m)
			} else {
				evicted++
			}
		}
		e.messages = kept
		if len(e.messages) == 0 && e.touched.Before(cutoff) {
			delete(c.entries, id)
			dropped++
		}
	}
	return evicted, dropped
}

// Run sweeps on a fixed interval until the context is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, dropped := c.Sweep()
			if evicted > 0 || dropped > 0 {
				c.logger.Debug("cache sweep",
					zap.Int("evicted_messages", evicted),
					zap.Int("dropped_conversations", dropped))
			}
		}
	}
}

// ensure must be called with the write lock held.
func (c *Cache) ensure(conv store.Conversation) *entry {
	e := c.entries[conv.ID]
	if e == nil {
		e = &entry{
			chat: Chat{
				ID:             conv.ExternalChatID,
				ConversationID: conv.ID,
				Name:           conv.Name,
				UnreadCount:    conv.UnreadCount,
				LastActivity:   conv.UpdatedAt,
			},
		}
		c.entries[conv.ID] = e
	}
	return e
}

func (e *entry) refreshSummary() {
	if len(e.messages) == 0 {
		return
	}
	last := e.messages[len(e.messages)-1]
	e.chat.LastMessage = last.Content
	if last.Timestamp > e.chat.LastActivity {
		e.chat.LastActivity = last.Timestamp
	}
}

// insertSorted places msg by timestamp, after any equal timestamps so
// arrival order breaks ties.
func insertSorted(list []store.Message, msg store.Message) []store.Message {
	i := sort.Search(len(list), func(j int) bool { return list[j].Timestamp > msg.Timestamp })
	list = append(list, store.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}
