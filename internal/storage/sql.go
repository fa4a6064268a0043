package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"pharmtrack/internal/medicine"
)

// sqlStorage implements Storage on top of database/sql. Queries are written
// with '?' placeholders and rebound for drivers that need numbered ones.
type sqlStorage struct {
	db       *sql.DB
	numbered bool
	mu       sync.Mutex
}

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL, -- JSON document
		updated_at TEXT NOT NULL -- RFC 3339
	)`,
	`CREATE TABLE IF NOT EXISTS dose_events (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		action TEXT NOT NULL,
		at TEXT NOT NULL, -- RFC 3339
		detail TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS dose_events_entry_id ON dose_events (entry_id)`,
}

// createTables creates the necessary tables
func (s *sqlStorage) createTables() error {
	for _, query := range sqlSchema {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}
	return nil
}

func (s *sqlStorage) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database connection
func (s *sqlStorage) Close() error {
	return s.db.Close()
}

// Medicine list
func (s *sqlStorage) LoadEntries() ([]*medicine.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(s.rebind("SELECT value FROM kv WHERE key = ?"), EntriesKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*medicine.Entry{}, nil
		}
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	entries := []*medicine.Entry{}
	if value == "" {
		return entries, nil
	}
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entries: %w", err)
	}
	return entries, nil
}

func (s *sqlStorage) SaveEntries(entries []*medicine.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []*medicine.Entry{}
	}
	value, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	_, err = s.db.Exec(s.rebind(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		EntriesKey, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save entries: %w", err)
	}
	return nil
}

// DoseEvent operations
func (s *sqlStorage) CreateDoseEvent(e *medicine.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(s.rebind("INSERT INTO dose_events (id, entry_id, action, at, detail) VALUES (?, ?, ?, ?, ?)"),
		e.ID, e.EntryID, string(e.Action), e.At.Format(time.RFC3339Nano), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to create dose event: %w", err)
	}
	return nil
}

func (s *sqlStorage) GetDoseEvent(id string) (*medicine.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(s.rebind("SELECT id, entry_id, action, at, detail FROM dose_events WHERE id = ?"), id)
	e, err := scanDoseEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDoseEventNotFound
		}
		return nil, fmt.Errorf("failed to get dose event: %w", err)
	}
	return e, nil
}

func (s *sqlStorage) ListDoseEvents(entryID string) ([]*medicine.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(s.rebind("SELECT id, entry_id, action, at, detail FROM dose_events WHERE entry_id = ?"), entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dose events: %w", err)
	}
	defer rows.Close()

	var events []*medicine.DoseEvent
	for rows.Next() {
		e, err := scanDoseEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dose event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dose events: %w", err)
	}

	sortEvents(events)
	return events, nil
}

func (s *sqlStorage) DeleteDoseEvents(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(s.rebind("DELETE FROM dose_events WHERE entry_id = ?"), entryID); err != nil {
		return fmt.Errorf("failed to delete dose events: %w", err)
	}
	return nil
}

func (s *sqlStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin clear: %w", err)
	}
	if _, err := tx.Exec(s.rebind("DELETE FROM kv WHERE key = ?"), EntriesKey); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM dose_events"); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear dose events: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoseEvent(row rowScanner) (*medicine.DoseEvent, error) {
	var e medicine.DoseEvent
	var action, at string
	if err := row.Scan(&e.ID, &e.EntryID, &action, &at, &e.Detail); err != nil {
		return nil, err
	}
	e.Action = medicine.Action(action)

	var err error
	if e.At, err = parseTimeString(at); err != nil {
		return nil, err
	}
	return &e, nil
}

// parseTimeString parses a time string in ISO 8601 format
func parseTimeString(timeStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time string: %s", timeStr)
}
