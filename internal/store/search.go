package store

import "database/sql"

// SearchMessages performs a full-text search on message content. Pass an
// empty conversationID to search across all conversations.
func (db *DB) SearchMessages(query, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.conversation_id, m.external_id, m.sender_id, m.sender_name,
		       m.content, m.message_type, m.direction, m.status, m.is_edited,
		       m.edited_at, m.timestamp,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var externalID, editedAt sql.NullInt64
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ConversationID, &externalID,
			&r.Message.SenderID, &r.Message.SenderName, &r.Message.Content,
			&r.Message.Type, &r.Message.Direction, &r.Message.Status,
			&r.Message.IsEdited, &editedAt, &r.Message.Timestamp, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.ExternalID = externalID.Int64
		r.Message.EditedAt = editedAt.Int64
		results = append(results, r)
	}
	return results, rows.Err()
}
