package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or replaces a contact keyed by id.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, number, is_business, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			number = excluded.number,
			is_business = excluded.is_business`,
		c.ID, c.Name, c.Number, c.IsBusiness, now)
	return err
}

// ListContacts returns all contacts ordered by name ascending.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, name, number, is_business
		FROM contacts
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Number, &c.IsBusiness); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// GetContact returns a contact by id, or nil when not found.
func (db *DB) GetContact(id string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT id, name, number, is_business FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Number, &c.IsBusiness)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MessageCount returns the total number of stored messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
