// Package notify delivers reminder notifications and audio cues. Every channel
// is best effort: failures are logged and never block a reminder.
package notify

import "context"

// Notification is what a system notification surface receives.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Icon    string `json:"icon,omitempty"`
	Tag     string `json:"tag"`
	EntryID string `json:"entry_id"`
	Urgent  bool   `json:"urgent"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Player plays a tone until it ends or Stop is called.
type Player interface {
	Play(ctx context.Context, tone string) error
	Stop() error
}

// Nop is the notifier and player for environments without support.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
func (Nop) Play(context.Context, string) error        { return nil }
func (Nop) Stop() error                               { return nil }
