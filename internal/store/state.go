package store

import (
	"database/sql"
	"strconv"
	"time"
)

const cursorKey = "last_update_id"

// SetState upserts a relay_state key/value checkpoint.
func (db *DB) SetState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO relay_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// GetState retrieves a relay_state value. Missing keys return "".
func (db *DB) GetState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM relay_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetCursor persists the highest fully handled update id, so a restarted
// poller resumes one past it.
func (db *DB) SetCursor(updateID int64) error {
	return db.SetState(cursorKey, strconv.FormatInt(updateID, 10))
}

// Cursor returns the persisted update cursor, 0 if none was saved yet.
func (db *DB) Cursor() (int64, error) {
	raw, err := db.GetState(cursorKey)
	if err != nil || raw == "" {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
