package medicine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClockLayout is the layout of a scheduled time-of-day.
const ClockLayout = "15:04"

// ErrInvalidEntry is wrapped by every ValidationError.
var ErrInvalidEntry = errors.New("invalid medicine entry")

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEntry
}

// Entry is a single scheduled medicine.
type Entry struct {
	ID            string     `json:"id" bson:"id"`
	Name          string     `json:"name" bson:"name"`
	Dosage        string     `json:"dosage" bson:"dosage"`
	Frequency     string     `json:"frequency" bson:"frequency"`
	Time          string     `json:"time" bson:"time"`
	Critical      bool       `json:"critical" bson:"critical"`
	TakenCount    int        `json:"taken_count" bson:"taken_count"`
	MissedCount   int        `json:"missed_count" bson:"missed_count"`
	LastTriggered string     `json:"last_triggered,omitempty" bson:"last_triggered,omitempty"`
	TriggeredAt   *time.Time `json:"triggered_at,omitempty" bson:"triggered_at,omitempty"`
	SnoozedUntil  *time.Time `json:"snoozed_until,omitempty" bson:"snoozed_until,omitempty"`
	CustomTone    string     `json:"custom_tone,omitempty" bson:"custom_tone,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	LastTaken     *time.Time `json:"last_taken,omitempty" bson:"last_taken,omitempty"`
}

// NewEntry validates the user supplied fields and builds an entry with zeroed
// counters. Text fields are trimmed before validation.
func NewEntry(id, name, dosage, frequency, clock string, critical bool, customTone string, createdAt time.Time) (*Entry, error) {
	e := &Entry{
		ID:         id,
		Name:       strings.TrimSpace(name),
		Dosage:     strings.TrimSpace(dosage),
		Frequency:  strings.TrimSpace(frequency),
		Time:       strings.TrimSpace(clock),
		Critical:   critical,
		CustomTone: strings.TrimSpace(customTone),
		CreatedAt:  createdAt,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the required fields in form order.
func (e *Entry) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", e.Name},
		{"dosage", e.Dosage},
		{"frequency", e.Frequency},
		{"time", e.Time},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	if _, err := time.Parse(ClockLayout, e.Time); err != nil {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	return nil
}

// IsSnoozed reports whether a snooze deadline is still in the future at now.
func (e *Entry) IsSnoozed(now time.Time) bool {
	return e.SnoozedUntil != nil && e.SnoozedUntil.After(now)
}

// SnoozeElapsed reports whether a snooze deadline exists and has passed at now.
func (e *Entry) SnoozeElapsed(now time.Time) bool {
	return e.SnoozedUntil != nil && !e.SnoozedUntil.After(now)
}

// MarkTriggered records a firing (or a dismissal) in the minute of now.
func (e *Entry) MarkTriggered(now time.Time, clock string) {
	e.LastTriggered = clock
	e.TriggeredAt = &now
}

// TriggeredThisMinute reports whether the entry already fired in the
// wall-clock minute clock. Entries saved without TriggeredAt only compare the
// clock.
func (e *Entry) TriggeredThisMinute(now time.Time, clock string) bool {
	if e.LastTriggered != clock {
		return false
	}
	if e.TriggeredAt == nil {
		return true
	}
	d := now.Sub(*e.TriggeredAt)
	return d >= 0 && d < time.Minute
}

func (e *Entry) MarkTaken(at time.Time) {
	e.TakenCount++
	e.LastTaken = &at
}

func (e *Entry) MarkMissed() {
	e.MissedCount++
}

func (e *Entry) Snooze(until time.Time) {
	e.SnoozedUntil = &until
}

// Clone returns a deep copy so callers never share the stored pointers.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.SnoozedUntil != nil {
		t := *e.SnoozedUntil
		c.SnoozedUntil = &t
	}
	if e.TriggeredAt != nil {
		t := *e.TriggeredAt
		c.TriggeredAt = &t
	}
	if e.LastTaken != nil {
		t := *e.LastTaken
		c.LastTaken = &t
	}
	return &c
}

// Clock formats t as a scheduled time-of-day.
func Clock(t time.Time) string {
	return t.Format(ClockLayout)
}
