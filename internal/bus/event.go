package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the relay engine. Subscribers filter by prefix,
// e.g. "message." receives all message events.
const (
	// KindMessageNew carries the store.Message that was just inserted.
	KindMessageNew = "message.new"
	// KindMessageUpdated carries the store.Message whose content was edited.
	KindMessageUpdated = "message.updated"
	// KindMessageStatus carries a StatusUpdate.
	KindMessageStatus = "message.status_changed"
	// KindConnection carries a ConnectionChange.
	KindConnection = "connection.changed"
	// KindUnread carries an UnreadChange.
	KindUnread = "unread.changed"
	// KindError carries an ErrorNotice.
	KindError = "relay.error"
)

// StatusUpdate is the payload for message.status_changed events.
type StatusUpdate struct {
	MessageID string
	Status    string
}

// ConnectionChange is the payload for connection.changed events.
type ConnectionChange struct {
	Connected bool
}

// UnreadChange is the payload for unread.changed events. Total is the
// unread count summed across all conversations.
type UnreadChange struct {
	Total int
}

// ErrorNotice is the payload for relay.error events.
type ErrorNotice struct {
	Message string
}
