package storage

import (
	"sync"

	"pharmtrack/internal/medicine"
)

type MemoryStorage struct {
	entries    []*medicine.Entry
	doseEvents map[string]*medicine.DoseEvent
	mu         sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		doseEvents: make(map[string]*medicine.DoseEvent),
	}
}

// Medicine list
func (m *MemoryStorage) LoadEntries() ([]*medicine.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*medicine.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e.Clone())
	}
	return list, nil
}

func (m *MemoryStorage) SaveEntries(entries []*medicine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make([]*medicine.Entry, 0, len(entries))
	for _, e := range entries {
		m.entries = append(m.entries, e.Clone())
	}
	return nil
}

// DoseEvent operations
func (m *MemoryStorage) CreateDoseEvent(e *medicine.DoseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	m.doseEvents[e.ID] = &c
	return nil
}

func (m *MemoryStorage) GetDoseEvent(id string) (*medicine.DoseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.doseEvents[id]
	if !ok {
		return nil, ErrDoseEventNotFound
	}
	c := *e
	return &c, nil
}

func (m *MemoryStorage) ListDoseEvents(entryID string) ([]*medicine.DoseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*medicine.DoseEvent
	for _, e := range m.doseEvents {
		if e.EntryID == entryID {
			c := *e
			list = append(list, &c)
		}
	}
	sortEvents(list)
	return list, nil
}

func (m *MemoryStorage) DeleteDoseEvents(entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.doseEvents {
		if e.EntryID == entryID {
			delete(m.doseEvents, id)
		}
	}
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.doseEvents = make(map[string]*medicine.DoseEvent)
	return nil
}
