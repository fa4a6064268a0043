// Package reminder owns the medicine list, the trigger loop and the reminder
// state machine.
package reminder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pharmtrack/internal/medicine"
	"pharmtrack/internal/storage"
)

var (
	ErrNotFound      = errors.New("medicine not found")
	ErrEventNotFound = errors.New("dose event not found")
)

// AddInput carries the user supplied fields of a new medicine.
type AddInput struct {
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Time       string `json:"time"`
	Critical   bool   `json:"critical"`
	CustomTone string `json:"custom_tone,omitempty"`
}

// Stats sums the dose counters across every entry.
type Stats struct {
	Total  int `json:"total"`
	Taken  int `json:"taken"`
	Missed int `json:"missed"`
}

// Store is the in-memory medicine list. Every mutation is written through to
// the backend; write failures are logged and the in-memory list stays
// authoritative.
type Store struct {
	mu      sync.Mutex
	backend storage.Storage
	entries []*medicine.Entry

	subMu   sync.Mutex
	subs    map[int]func([]*medicine.Entry)
	nextSub int

	now   func() time.Time
	newID func() string
	log   logrus.FieldLogger
}

func NewStore(backend storage.Storage, log logrus.FieldLogger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend: backend,
		subs:    make(map[int]func([]*medicine.Entry)),
		now:     now,
		newID:   func() string { return uuid.New().String() },
		log:     log,
	}
}

// Load replaces the in-memory list with the persisted one. Missing or
// unreadable data leaves an empty list.
func (s *Store) Load() {
	entries, err := s.backend.LoadEntries()
	if err != nil {
		s.log.WithError(err).Warn("failed to load saved medicines, starting empty")
		entries = nil
	}

	valid := entries[:0]
	for _, e := range entries {
		if e == nil || e.ID == "" {
			continue
		}
		valid = append(valid, e)
	}

	s.mu.Lock()
	s.entries = valid
	s.mu.Unlock()

	s.log.WithField("count", len(valid)).Info("medicines loaded")
}

// Add validates in, prepends the new entry and persists the list.
func (s *Store) Add(in AddInput) (*medicine.Entry, error) {
	e, err := medicine.NewEntry(s.newID(), in.Name, in.Dosage, in.Frequency, in.Time, in.Critical, in.CustomTone, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries = append([]*medicine.Entry{e}, s.entries...)
	s.saveLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return e.Clone(), nil
}

func (s *Store) Get(id string) (*medicine.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return s.entries[i].Clone(), nil
}

// List returns copies of every entry, newest first.
func (s *Store) List() []*medicine.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Remove deletes the entry and its dose history.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.saveLocked()
	if err := s.backend.DeleteDoseEvents(id); err != nil {
		s.log.WithError(err).WithField("entry_id", id).Warn("failed to delete dose history")
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return nil
}

// Reset empties the list and clears everything persisted.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = nil
	if err := s.backend.Clear(); err != nil {
		s.log.WithError(err).Error("failed to clear saved medicines")
	}
	s.mu.Unlock()

	s.publish(nil)
}

// Update applies fn to the entry with the given id and persists the list.
func (s *Store) Update(id string, fn func(e *medicine.Entry)) (*medicine.Entry, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	fn(s.entries[i])
	updated := s.entries[i].Clone()
	s.saveLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return updated, nil
}

// UpdateAll applies fn to every entry in list order. fn reports whether it
// changed the entry; the list is saved once when anything changed.
func (s *Store) UpdateAll(fn func(e *medicine.Entry) bool) int {
	s.mu.Lock()
	changed := 0
	for _, e := range s.entries {
		if fn(e) {
			changed++
		}
	}
	if changed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.saveLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return changed
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned func cancels the subscription.
func (s *Store) Subscribe(fn func([]*medicine.Entry)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		st.Taken += e.TakenCount
		st.Missed += e.MissedCount
	}
	return st
}

// RecordEvent appends to the entry's dose history. Persistence errors are
// logged; the event is returned either way.
func (s *Store) RecordEvent(entryID string, action medicine.Action, at time.Time, detail string) *medicine.DoseEvent {
	ev := &medicine.DoseEvent{
		ID:      s.newID(),
		EntryID: entryID,
		Action:  action,
		At:      at,
		Detail:  detail,
	}
	if err := s.backend.CreateDoseEvent(ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"entry_id": entryID,
			"action":   action,
		}).Warn("failed to record dose event")
	}
	return ev
}

// Events returns the dose history of an existing entry, oldest first.
func (s *Store) Events(entryID string) ([]*medicine.DoseEvent, error) {
	if _, err := s.Get(entryID); err != nil {
		return nil, err
	}
	events, err := s.backend.ListDoseEvents(entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dose events: %w", err)
	}
	return events, nil
}

// Event returns one dose event of an existing entry.
func (s *Store) Event(entryID, eventID string) (*medicine.DoseEvent, error) {
	if _, err := s.Get(entryID); err != nil {
		return nil, err
	}
	ev, err := s.backend.GetDoseEvent(eventID)
	if errors.Is(err, storage.ErrDoseEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dose event: %w", err)
	}
	if ev.EntryID != entryID {
		return nil, ErrEventNotFound
	}
	return ev, nil
}

func (s *Store) saveLocked() {
	if err := s.backend.SaveEntries(s.entries); err != nil {
		s.log.WithError(err).Error("failed to save medicines")
	}
}

func (s *Store) snapshotLocked() []*medicine.Entry {
	out := make([]*medicine.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) publish(snapshot []*medicine.Entry) {
	s.subMu.Lock()
	subs := make([]func([]*medicine.Entry), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
