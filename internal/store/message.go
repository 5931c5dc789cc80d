package store

import (
	"database/sql"
	"time"
)

// DefaultMessageLimit is used when a caller supplies no (or an invalid) limit.
const DefaultMessageLimit = 100

// UpsertMessage inserts or replaces a message keyed by id. Last write wins;
// created_at is preserved across updates.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, text, timestamp, is_group, from_me, type, has_media, media_url, mime_type, caption, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			sender_id = excluded.sender_id,
			text = excluded.text,
			timestamp = excluded.timestamp,
			is_group = excluded.is_group,
			from_me = excluded.from_me,
			type = excluded.type,
			has_media = excluded.has_media,
			media_url = excluded.media_url,
			mime_type = excluded.mime_type,
			caption = excluded.caption`,
		m.ID, m.ChatID, m.SenderID, m.Text, m.Timestamp, m.IsGroup, m.FromMe, m.Type, m.HasMedia, m.MediaURL, m.MimeType, m.Caption, now)
	return err
}

// UpsertMessages writes a batch of messages in a single transaction. History
// syncs arrive in batches of hundreds; one transaction avoids an fsync per
// row.
func (db *DB) UpsertMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	stmt, err := tx.Prepare(`
		INSERT INTO messages (id, chat_id, sender_id, text, timestamp, is_group, from_me, type, has_media, media_url, mime_type, caption, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			sender_id = excluded.sender_id,
			text = excluded.text,
			timestamp = excluded.timestamp,
			is_group = excluded.is_group,
			from_me = excluded.from_me,
			type = excluded.type,
			has_media = excluded.has_media,
			media_url = excluded.media_url,
			mime_type = excluded.mime_type,
			caption = excluded.caption`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range msgs {
		if _, err := stmt.Exec(m.ID, m.ChatID, m.SenderID, m.Text, m.Timestamp, m.IsGroup, m.FromMe, m.Type, m.HasMedia, m.MediaURL, m.MimeType, m.Caption, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListMessagesByChat returns messages for a chat ordered by timestamp
// descending (most recent first). limit <= 0 falls back to
// DefaultMessageLimit, offset < 0 to 0.
func (db *DB) ListMessagesByChat(chatID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.Query(`
		SELECT id, chat_id, sender_id, text, timestamp, is_group, from_me, type, has_media, media_url, mime_type, caption
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Timestamp, &m.IsGroup, &m.FromMe, &m.Type, &m.HasMedia, &m.MediaURL, &m.MimeType, &m.Caption); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a single message by id, or nil when not found.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, chat_id, sender_id, text, timestamp, is_group, from_me, type, has_media, media_url, mime_type, caption
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Timestamp, &m.IsGroup, &m.FromMe, &m.Type, &m.HasMedia, &m.MediaURL, &m.MimeType, &m.Caption)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestMessageID returns the id of the most recent message in a chat, or an
// empty string when the chat has no messages yet.
func (db *DB) LatestMessageID(chatID string) (string, error) {
	var id string
	err := db.QueryRow(`
		SELECT id FROM messages WHERE chat_id = ? ORDER BY timestamp DESC LIMIT 1`, chatID).
		Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
