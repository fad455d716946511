package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/privroom/internal/store"
)

//go:embed schema.sql
var schema string

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup opens a SQLite store and runs a setup function before use.
// Useful for tests to apply schema over ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates tables and indexes if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateRoom inserts a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) error {
	query := `
		INSERT INTO rooms (id, password_hash, expires_at, created_at, last_sequence)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		room.ID,
		room.PasswordHash,
		room.ExpiresAt.UnixNano(),
		room.CreatedAt.UnixNano(),
		room.LastSequence,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("insert room %q: %w", room.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, password_hash, expires_at, created_at, last_sequence
		FROM rooms
		WHERE id = ?
	`
	var (
		room      store.Room
		expiresAt int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.PasswordHash,
		&expiresAt,
		&createdAt,
		&room.LastSequence,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.ExpiresAt = time.Unix(0, expiresAt)
	room.CreatedAt = time.Unix(0, createdAt)

	return &room, nil
}

// DeleteRoom removes a room and its messages in one transaction.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE room_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return affected > 0, nil
}

// ListExpiredRooms returns ids of rooms with expires_at <= now.
func (s *SQLiteStore) ListExpiredRooms(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM rooms WHERE expires_at <= ? ORDER BY expires_at`, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query expired rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== MessageStore implementation ====

// AppendMessage bumps the room sequence and inserts the message atomically.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `UPDATE rooms SET last_sequence = last_sequence + 1 WHERE id = ?`, msg.RoomID)
	if err != nil {
		return fmt.Errorf("bump sequence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("room %q: %w", msg.RoomID, store.ErrNotFound)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT last_sequence FROM rooms WHERE id = ?`, msg.RoomID).Scan(&seq); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	query := `
		INSERT INTO messages (room_id, sequence, sender, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err = tx.ExecContext(ctx, query, msg.RoomID, seq, msg.Sender, msg.Text, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	msg.ID = id
	msg.Sequence = seq
	return nil
}

// ListMessages returns all messages of a room ordered by sequence.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string) ([]*store.Message, error) {
	query := `
		SELECT id, room_id, sequence, sender, text, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var (
			msg       store.Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Sequence, &msg.Sender, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ClearMessages deletes all messages of a room, keeping the room row.
func (s *SQLiteStore) ClearMessages(ctx context.Context, roomID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	return result.RowsAffected()
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
