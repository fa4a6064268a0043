package storage

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"pharmtrack/internal/medicine"
)

// FileStorage keeps the medicine list as a JSON array in one file and the
// dose events as a JSON object keyed by id in another.
type FileStorage struct {
	entriesFile    string
	doseEventsFile string
	mu             sync.Mutex
}

func NewFileStorage(entriesFile, doseEventsFile string) *FileStorage {
	return &FileStorage{
		entriesFile:    entriesFile,
		doseEventsFile: doseEventsFile,
	}
}

// Helper functions for file IO
func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fs *FileStorage) loadDoseEvents() (map[string]*medicine.DoseEvent, error) {
	events := make(map[string]*medicine.DoseEvent)
	data, err := readFileIfExists(fs.doseEventsFile)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return events, nil
	}
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (fs *FileStorage) saveDoseEvents(events map[string]*medicine.DoseEvent) error {
	return writeJSON(fs.doseEventsFile, events)
}

// Medicine list
func (fs *FileStorage) LoadEntries() ([]*medicine.Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, err := readFileIfExists(fs.entriesFile)
	if err != nil {
		return nil, err
	}
	entries := []*medicine.Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (fs *FileStorage) SaveEntries(entries []*medicine.Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if entries == nil {
		entries = []*medicine.Entry{}
	}
	return writeJSON(fs.entriesFile, entries)
}

// DoseEvent operations
func (fs *FileStorage) CreateDoseEvent(e *medicine.DoseEvent) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	events, err := fs.loadDoseEvents()
	if err != nil {
		return err
	}
	events[e.ID] = e
	return fs.saveDoseEvents(events)
}

func (fs *FileStorage) GetDoseEvent(id string) (*medicine.DoseEvent, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	events, err := fs.loadDoseEvents()
	if err != nil {
		return nil, err
	}
	e, ok := events[id]
	if !ok {
		return nil, ErrDoseEventNotFound
	}
	return e, nil
}

func (fs *FileStorage) ListDoseEvents(entryID string) ([]*medicine.DoseEvent, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	events, err := fs.loadDoseEvents()
	if err != nil {
		return nil, err
	}
	var list []*medicine.DoseEvent
	for _, e := range events {
		if e.EntryID == entryID {
			list = append(list, e)
		}
	}
	sortEvents(list)
	return list, nil
}

func (fs *FileStorage) DeleteDoseEvents(entryID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	events, err := fs.loadDoseEvents()
	if err != nil {
		return err
	}
	for id, e := range events {
		if e.EntryID == entryID {
			delete(events, id)
		}
	}
	return fs.saveDoseEvents(events)
}

func (fs *FileStorage) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, path := range []string{fs.entriesFile, fs.doseEventsFile} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
