package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or replaces a chat record keyed by id.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (id, name, is_group, unread_count, last_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message_id = excluded.last_message_id`,
		c.ID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageID, now)
	return err
}

// ListChats returns all chats ordered by last_message_id descending.
// Message ids are opaque, so this is not a true recency sort; the ordering
// matches what the API has always returned.
func (db *DB) ListChats() ([]Chat, error) {
	rows, err := db.Query(`
		SELECT id, name, is_group, unread_count, last_message_id
		FROM chats
		ORDER BY last_message_id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageID); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil when not found.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, name, is_group, unread_count, last_message_id
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
