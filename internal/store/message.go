package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateMessage is returned when an insert collides with an already
// stored external message id. Callers treat it as a redelivery, not a failure.
var ErrDuplicateMessage = errors.New("duplicate external message id")

const messageColumns = `id, conversation_id, external_id, sender_id, sender_name, content, message_type, direction, status, is_edited, edited_at, timestamp`

// InsertMessage stores a message and its attachments. Empty ids are assigned.
// A collision on (conversation_id, external_id) returns ErrDuplicateMessage.
func (db *DB) InsertMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, external_id, sender_id, sender_name, content, message_type, direction, status, is_edited, edited_at, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, nullableID(m.ExternalID), m.SenderID, m.SenderName,
		m.Content, m.Type, m.Direction, m.Status, m.IsEdited, nullableID(m.EditedAt),
		m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("insert message: %w", err)
	}

	if err := insertAttachments(tx, m.ID, m.Attachments); err != nil {
		return err
	}
	return tx.Commit()
}

// FindMessageByExternalID returns the message carrying the given transport id
// within a conversation, or nil if none exists.
func (db *DB) FindMessageByExternalID(conversationID string, externalID int64) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND external_id = ?`, conversationID, externalID)
	m, err := scanMessage(row)
	if err != nil || m == nil {
		return m, err
	}
	if err := db.loadAttachments([]*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ApplyEdit rewrites a message's content, attachments and timestamp in place
// and marks it edited.
func (db *DB) ApplyEdit(id, content string, timestamp, editedAt int64, attachments []Attachment) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE messages
		SET content = ?, timestamp = ?, is_edited = 1, edited_at = ?
		WHERE id = ?`, content, timestamp, editedAt, id)
	if err != nil {
		return fmt.Errorf("apply edit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("apply edit: message %s not found", id)
	}

	if _, err := tx.Exec(`DELETE FROM attachments WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("clear attachments: %w", err)
	}
	if err := insertAttachments(tx, id, attachments); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateMessageStatus changes a message's delivery status.
func (db *DB) UpdateMessageStatus(id, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, status, id)
	return err
}

// ListRecentMessages returns up to limit messages for a conversation, ordered
// by timestamp ascending. Offset skips from the newest end, so (limit=50,
// offset=0) is the latest page.
func (db *DB) ListRecentMessages(conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; present ascending.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	refs := make([]*Message, len(msgs))
	for i := range msgs {
		refs[i] = &msgs[i]
	}
	if err := db.loadAttachments(refs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MessageCount returns the number of stored messages.
func (db *DB) MessageCount() (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func insertAttachments(tx *sql.Tx, messageID string, attachments []Attachment) error {
	for i := range attachments {
		a := &attachments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.MessageID = messageID
		if _, err := tx.Exec(`
			INSERT INTO attachments (id, message_id, position, file_name, file_size, mime_type, external_file_id, thumb_file_id, thumb_width, thumb_height, duration, width, height)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, messageID, i, a.FileName, a.FileSize, a.MimeType, a.ExternalFileID,
			a.ThumbFileID, a.ThumbWidth, a.ThumbHeight, a.Duration, a.Width, a.Height); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return nil
}

func (db *DB) loadAttachments(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]any, 0, len(msgs))
	byID := make(map[string]*Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := db.Query(`
		SELECT id, message_id, file_name, file_size, mime_type, external_file_id, thumb_file_id, thumb_width, thumb_height, duration, width, height
		FROM attachments
		WHERE message_id IN (`+placeholders+`)
		ORDER BY message_id, position`, ids...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.FileName, &a.FileSize, &a.MimeType,
			&a.ExternalFileID, &a.ThumbFileID, &a.ThumbWidth, &a.ThumbHeight,
			&a.Duration, &a.Width, &a.Height); err != nil {
			return err
		}
		if m := byID[a.MessageID]; m != nil {
			m.Attachments = append(m.Attachments, a)
		}
	}
	return rows.Err()
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var externalID, editedAt sql.NullInt64
	err := row.Scan(&m.ID, &m.ConversationID, &externalID, &m.SenderID, &m.SenderName,
		&m.Content, &m.Type, &m.Direction, &m.Status, &m.IsEdited, &editedAt, &m.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ExternalID = externalID.Int64
	m.EditedAt = editedAt.Int64
	return &m, nil
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
