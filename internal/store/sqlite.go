package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver (cgo), registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure-Go SQLite driver, registered as "sqlite"
)

const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

const schema = `
    CREATE TABLE IF NOT EXISTS dreams (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        date TEXT NOT NULL,
        title TEXT NOT NULL,
        description TEXT NOT NULL,
        lucidityLevel TEXT,
        tags TEXT,             -- JSON array of strings or NULL
        emotions TEXT,         -- JSON array of strings or NULL
        realityChecks TEXT,    -- JSON array of {type, outcome} or NULL
        lucidityTriggers TEXT  -- JSON array of strings or NULL
    );

    CREATE INDEX IF NOT EXISTS idx_dreams_date ON dreams (date);

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        role TEXT NOT NULL CHECK (role IN ('user', 'model')),
        content TEXT NOT NULL,
        timestamp TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations (timestamp, id);
    `

const dreamColumns = "id, date, title, description, lucidityLevel, tags, emotions, realityChecks, lucidityTriggers"

// SQLiteStore owns the journal database handle. It does no I/O until
// Initialize is called and releases the handle on Close.
type SQLiteStore struct {
	driver         string
	dataSourceName string

	initMu sync.Mutex // held for the whole open + schema sequence
	mu     sync.RWMutex
	db     *sql.DB
}

func NewSQLiteStore(driver, dataSourceName string) *SQLiteStore {
	if driver == "" {
		driver = DriverCGO
	}
	return &SQLiteStore{driver: driver, dataSourceName: dataSourceName}
}

// Open creates a store and initializes it.
func Open(ctx context.Context, driver, dataSourceName string) (*SQLiteStore, error) {
	s := NewSQLiteStore(driver, dataSourceName)
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize opens the database and creates the tables. It is safe to call
// repeatedly and concurrently: callers that arrive while another call is
// running wait for it and then return nil if it succeeded. A failed call
// leaves the store closed, so the caller may try again.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.handle() != nil {
		return nil
	}

	db, err := sql.Open(s.driver, s.dataSourceName)
	if err != nil {
		return &Error{Kind: KindInit, Op: "open", Err: err}
	}
	// Single logical writer: one connection serializes statements.
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return &Error{Kind: KindInit, Op: "ping", Err: err}
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return &Error{Kind: KindInit, Op: "create schema", Err: err}
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	log.Printf("Database initialized successfully (%s: %s)", s.driver, s.dataSourceName)
	return nil
}

func (s *SQLiteStore) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *SQLiteStore) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	if db := s.handle(); db != nil {
		return db, nil
	}
	return nil, ErrNotInitialized
}

// Dream methods
func (s *SQLiteStore) InsertDreamEntry(ctx context.Context, entry NewDreamEntry) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, writeError("insert dream", err)
	}

	lists, err := encodeDreamLists(entry.Tags, entry.Emotions, entry.RealityChecks, entry.LucidityTriggers)
	if err != nil {
		return 0, writeError("insert dream", err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO dreams (date, title, description, lucidityLevel, tags, emotions, realityChecks, lucidityTriggers)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Date, entry.Title, entry.Description, nullIfEmpty(entry.LucidityLevel),
		lists[0], lists[1], lists[2], lists[3],
	)
	if err != nil {
		return 0, writeError("insert dream", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, writeError("insert dream", fmt.Errorf("failed to read new id: %w", err))
	}
	return id, nil
}

// FetchDreamEntryByID returns nil, nil when no entry has the id.
func (s *SQLiteStore) FetchDreamEntryByID(ctx context.Context, id int64) (*DreamEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, readError("fetch dream", err)
	}

	row := db.QueryRowContext(ctx, "SELECT "+dreamColumns+" FROM dreams WHERE id = ?", id)
	entry, err := scanDream(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, readError("fetch dream", err)
	}
	return entry, nil
}

// UpdateDreamEntry writes only the fields set in update. An update with no
// fields set, or one that matches no row, succeeds without effect.
func (s *SQLiteStore) UpdateDreamEntry(ctx context.Context, id int64, update DreamUpdate) error {
	var sets []string
	var args []any

	setColumn := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if v, ok := update.Date.Get(); ok {
		setColumn("date", v)
	}
	if v, ok := update.Title.Get(); ok {
		setColumn("title", v)
	}
	if v, ok := update.Description.Get(); ok {
		setColumn("description", v)
	}
	if v, ok := update.LucidityLevel.Get(); ok {
		setColumn("lucidityLevel", nullIfEmpty(v))
	}

	var encodeErr error
	setList := func(column string, value any, err error) {
		if err != nil {
			encodeErr = err
			return
		}
		setColumn(column, value)
	}
	if v, ok := update.Tags.Get(); ok {
		value, err := encodeList(v)
		setList("tags", value, err)
	}
	if v, ok := update.Emotions.Get(); ok {
		value, err := encodeList(v)
		setList("emotions", value, err)
	}
	if v, ok := update.RealityChecks.Get(); ok {
		value, err := encodeList(v)
		setList("realityChecks", value, err)
	}
	if v, ok := update.LucidityTriggers.Get(); ok {
		value, err := encodeList(v)
		setList("lucidityTriggers", value, err)
	}
	if encodeErr != nil {
		return writeError("update dream", encodeErr)
	}

	if len(sets) == 0 {
		return nil
	}

	db, err := s.conn()
	if err != nil {
		return writeError("update dream", err)
	}

	args = append(args, id)
	query := "UPDATE dreams SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return writeError("update dream", err)
	}
	return nil
}

// DeleteDreamEntry is idempotent: deleting a missing id is not an error.
func (s *SQLiteStore) DeleteDreamEntry(ctx context.Context, id int64) error {
	db, err := s.conn()
	if err != nil {
		return writeError("delete dream", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM dreams WHERE id = ?", id); err != nil {
		return writeError("delete dream", err)
	}
	return nil
}

func (s *SQLiteStore) CountDreams(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, readError("count dreams", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dreams").Scan(&n); err != nil {
		return 0, readError("count dreams", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDream(r rowScanner) (*DreamEntry, error) {
	var entry DreamEntry
	var lucidity, tags, emotions, checks, triggers sql.NullString
	if err := r.Scan(&entry.ID, &entry.Date, &entry.Title, &entry.Description,
		&lucidity, &tags, &emotions, &checks, &triggers); err != nil {
		return nil, err
	}
	entry.LucidityLevel = lucidity.String
	entry.Tags = decodeColumn[string](entry.ID, "tags", tags)
	entry.Emotions = decodeColumn[string](entry.ID, "emotions", emotions)
	entry.RealityChecks = decodeColumn[RealityCheck](entry.ID, "realityChecks", checks)
	entry.LucidityTriggers = decodeColumn[string](entry.ID, "lucidityTriggers", triggers)
	return &entry, nil
}

func decodeColumn[T any](id int64, column string, col sql.NullString) []T {
	items, err := decodeList[T](col)
	if err != nil {
		log.Printf("Warning: dream %d has malformed %s: %v. Treating it as empty.", id, column, err)
	}
	return items
}

func encodeDreamLists(tags, emotions []string, checks []RealityCheck, triggers []string) ([4]any, error) {
	var out [4]any
	var err error
	if out[0], err = encodeList(tags); err != nil {
		return out, err
	}
	if out[1], err = encodeList(emotions); err != nil {
		return out, err
	}
	if out[2], err = encodeList(checks); err != nil {
		return out, err
	}
	if out[3], err = encodeList(triggers); err != nil {
		return out, err
	}
	return out, nil
}

// Conversation methods

// AppendConversationMessage logs one chat turn. Failures are logged and
// swallowed; the chat flow never waits on or fails because of the log.
func (s *SQLiteStore) AppendConversationMessage(ctx context.Context, role Role, content string, timestamp time.Time) {
	if err := s.insertConversationMessage(ctx, role, content, timestamp); err != nil {
		log.Printf("Failed to insert conversation message (%s, %.30q): %v", role, content, err)
	}
}

func (s *SQLiteStore) insertConversationMessage(ctx context.Context, role Role, content string, timestamp time.Time) error {
	if !role.Valid() {
		return writeError("append message", fmt.Errorf("unknown role %q", role))
	}
	db, err := s.conn()
	if err != nil {
		return writeError("append message", err)
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO conversations (role, content, timestamp) VALUES (?, ?, ?)",
		string(role), content, formatTimestamp(timestamp),
	)
	if err != nil {
		return writeError("append message", err)
	}
	return nil
}

// FetchConversationHistory returns every message, oldest first. Messages
// with equal timestamps keep insertion order.
func (s *SQLiteStore) FetchConversationHistory(ctx context.Context) ([]ConversationMessage, error) {
	db, err := s.conn()
	if err != nil {
		return nil, readError("fetch conversation", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT id, role, content, timestamp FROM conversations ORDER BY timestamp ASC, id ASC")
	if err != nil {
		return nil, readError("fetch conversation", err)
	}
	defer rows.Close()

	messages := []ConversationMessage{}
	for rows.Next() {
		var msg ConversationMessage
		var role, ts string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts); err != nil {
			return nil, readError("fetch conversation", fmt.Errorf("failed to scan message row: %w", err))
		}
		msg.Role = Role(role)
		if msg.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, readError("fetch conversation", fmt.Errorf("message %d: %w", msg.ID, err))
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("fetch conversation", err)
	}
	return messages, nil
}

func (s *SQLiteStore) ClearConversationHistory(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return writeError("clear conversation", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return writeError("clear conversation", err)
	}
	_, err = db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name='conversations'")
	if err != nil && !strings.Contains(err.Error(), "no such table") {
		log.Printf("Warning: could not reset sequence for conversations: %v", err)
	}
	return nil
}
