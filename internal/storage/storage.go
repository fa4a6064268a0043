package storage

import (
	"errors"
	"sort"

	"pharmtrack/internal/medicine"
)

// EntriesKey is the fixed key the medicine list is stored under.
const EntriesKey = "pharmtrack_medicines_v1"

var ErrDoseEventNotFound = errors.New("dose event not found")

// Storage defines the persistence surface for the medicine list
// and the dose history.
type Storage interface {
	// Medicine list, stored as one ordered sequence
	LoadEntries() ([]*medicine.Entry, error)
	SaveEntries(entries []*medicine.Entry) error

	// DoseEvent operations
	CreateDoseEvent(e *medicine.DoseEvent) error
	GetDoseEvent(id string) (*medicine.DoseEvent, error)
	ListDoseEvents(entryID string) ([]*medicine.DoseEvent, error)
	DeleteDoseEvents(entryID string) error

	// Clear removes the medicine list and every dose event.
	Clear() error
}

// sortEvents orders dose events oldest first.
func sortEvents(events []*medicine.DoseEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}
