package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// keepPerRoom caps the cached sequence per room, matching the backend's own
// history retention.
const keepPerRoom = 1000

const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		room      TEXT    NOT NULL,
		msg_id    TEXT    NOT NULL DEFAULT '',
		sender    TEXT    NOT NULL,
		text      TEXT    NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);
`

// MessageCache implements core.CacheStore on SQLite. It is the cross-reload
// message cache: best-effort, never authoritative.
type MessageCache struct {
	db *sql.DB
}

// New opens (and if needed creates) the cache database at dbPath.
func New(dbPath string) (*MessageCache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &MessageCache{db: db}, nil
}

// Close closes the database connection.
func (c *MessageCache) Close() error {
	return c.db.Close()
}

// Load reads the whole cache, ordered per room by insertion.
func (c *MessageCache) Load(ctx context.Context) (map[string][]core.Message, error) {
	query := `
		SELECT room, msg_id, sender, text, timestamp
		FROM messages
		ORDER BY room, id
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]core.Message)
	for rows.Next() {
		var msg core.Message
		if err := rows.Scan(&msg.Room, &msg.ID, &msg.Sender, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan cached message: %w", err)
		}
		out[msg.Room] = append(out[msg.Room], msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache: %w", err)
	}
	return out, nil
}

// Replace overwrites the cached sequence for a room in one transaction.
func (c *MessageCache) Replace(ctx context.Context, room string, msgs []core.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room); err != nil {
		return fmt.Errorf("clear room: %w", err)
	}
	insert := `INSERT INTO messages (room, msg_id, sender, text, timestamp) VALUES (?, ?, ?, ?, ?)`
	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, insert, room, msg.ID, msg.Sender, msg.Text, msg.Timestamp); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Append adds one message and prunes the room to the retention cap.
func (c *MessageCache) Append(ctx context.Context, msg core.Message) error {
	insert := `INSERT INTO messages (room, msg_id, sender, text, timestamp) VALUES (?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, insert, msg.Room, msg.ID, msg.Sender, msg.Text, msg.Timestamp); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	prune := `
		DELETE FROM messages
		WHERE room = ? AND id NOT IN (
			SELECT id FROM messages WHERE room = ? ORDER BY id DESC LIMIT ?
		)
	`
	if _, err := c.db.ExecContext(ctx, prune, msg.Room, msg.Room, keepPerRoom); err != nil {
		return fmt.Errorf("prune room: %w", err)
	}
	return nil
}

// DeleteRoom drops a room's cache entry.
func (c *MessageCache) DeleteRoom(ctx context.Context, room string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
