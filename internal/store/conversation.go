package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const conversationColumns = `id, external_chat_id, name, region_id, office_id, company_id, metadata, unread_count, created_at, updated_at`

// GetOrCreateConversation resolves an external chat identifier to its durable
// conversation, creating one lazily on first contact. Idempotent: the unique
// index on external_chat_id guarantees at most one conversation per external
// chat even across racing callers. A non-empty name refreshes a stale one.
func (db *DB) GetOrCreateConversation(externalChatID, name string) (*Conversation, error) {
	conv, err := db.GetConversationByExternalID(externalChatID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		if name != "" && name != conv.Name {
			now := time.Now().UnixMilli()
			if _, err := db.Exec(`UPDATE conversations SET name = ?, updated_at = ? WHERE id = ?`, name, now, conv.ID); err != nil {
				return nil, fmt.Errorf("refresh conversation name: %w", err)
			}
			conv.Name = name
			conv.UpdatedAt = now
		}
		return conv, nil
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO conversations (id, external_chat_id, name, metadata, created_at, updated_at)
		VALUES (?, ?, ?, '{}', ?, ?)
		ON CONFLICT(external_chat_id) DO NOTHING`,
		uuid.NewString(), externalChatID, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	conv, err = db.GetConversationByExternalID(externalChatID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation vanished after create: %s", externalChatID)
	}
	return conv, nil
}

// GetConversationByExternalID returns the conversation for an external chat
// identifier, or nil if none exists.
func (db *DB) GetConversationByExternalID(externalChatID string) (*Conversation, error) {
	row := db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE external_chat_id = ?`, externalChatID)
	return scanConversation(row)
}

// GetConversation returns a conversation by internal id, or nil if none exists.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// UpdateConversationMetadata replaces the conversation's metadata map.
func (db *DB) UpdateConversationMetadata(id string, metadata map[string]string) error {
	raw, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = db.Exec(`UPDATE conversations SET metadata = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().UnixMilli(), id)
	return err
}

// BindConversation records the finalized region -> office -> company mapping
// together with the closing metadata state.
func (db *DB) BindConversation(id, regionID, officeID, companyID string, metadata map[string]string) error {
	raw, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		UPDATE conversations
		SET region_id = ?, office_id = ?, company_id = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		regionID, officeID, companyID, raw, time.Now().UnixMilli(), id)
	return err
}

// TouchConversation advances updated_at to the given timestamp if newer.
func (db *DB) TouchConversation(id string, ts int64) error {
	_, err := db.Exec(`UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`, ts, id)
	return err
}

// ListRecentConversations returns conversations by most recent activity.
func (db *DB) ListRecentConversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// IncrementUnread bumps the conversation's unread counter by one.
func (db *DB) IncrementUnread(id string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_count = unread_count + 1 WHERE id = ?`, id)
	return err
}

// ResetUnread zeroes the conversation's unread counter.
func (db *DB) ResetUnread(id string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0 WHERE id = ?`, id)
	return err
}

// TotalUnread returns the unread count summed across all conversations.
func (db *DB) TotalUnread() (int, error) {
	var total int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM conversations`).Scan(&total)
	return total, err
}

// ConversationCount returns the number of stored conversations.
func (db *DB) ConversationCount() (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var raw string
	err := row.Scan(&c.ID, &c.ExternalChatID, &c.Name, &c.RegionID, &c.OfficeID,
		&c.CompanyID, &raw, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode conversation metadata: %w", err)
	}
	return &c, nil
}

func marshalMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode conversation metadata: %w", err)
	}
	return string(raw), nil
}
