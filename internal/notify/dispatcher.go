package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pharmtrack/internal/config"
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/platform/httpclient"
)

const (
	ReminderTitle  = "Medicine Reminder"
	EscalatedTitle = "Critical Medicine Missed"
	EscalatedBody  = "CRITICAL: important medicine missed - consider emergency action."
	tagNamespace   = "pharm"
)

// Dispatcher fans a reminder out to the notification and audio surfaces.
type Dispatcher struct {
	notifier    Notifier
	player      Player
	icon        string
	defaultTone string
	log         logrus.FieldLogger
}

type Options struct {
	Icon        string
	DefaultTone string
}

func NewDispatcher(notifier Notifier, player Player, opts Options, log logrus.FieldLogger) *Dispatcher {
	if notifier == nil {
		notifier = Nop{}
	}
	if player == nil {
		player = Nop{}
	}
	return &Dispatcher{
		notifier:    notifier,
		player:      player,
		icon:        opts.Icon,
		defaultTone: opts.DefaultTone,
		log:         log,
	}
}

// FromConfig selects the delivery channels once at startup. A missing audio
// player degrades to Nop with a warning.
func FromConfig(cfg config.NotifyConfig, log logrus.FieldLogger) *Dispatcher {
	var notifier Notifier
	switch cfg.Type {
	case "webhook":
		notifier = NewWebhookNotifier(httpclient.New(cfg.Timeout), cfg.WebhookURL)
	case "log":
		notifier = NewLogNotifier(log)
	default:
		notifier = Nop{}
	}

	var player Player = Nop{}
	if cfg.PlayerCommand != "" {
		p, err := NewCommandPlayer(cfg.PlayerCommand)
		if err != nil {
			log.WithError(err).Warn("audio cues disabled")
		} else {
			player = p
		}
	}

	log.WithFields(logrus.Fields{
		"notifier": fmt.Sprintf("%T", notifier),
		"player":   fmt.Sprintf("%T", player),
	}).Info("notification delivery ready")

	return NewDispatcher(notifier, player, Options{Icon: cfg.Icon, DefaultTone: cfg.DefaultTone}, log)
}

// Tag dedupes notifications for the same entry and scheduled time.
func Tag(e medicine.Entry) string {
	return fmt.Sprintf("%s-%s-%s", tagNamespace, e.ID, e.Time)
}

func ReminderBody(e medicine.Entry) string {
	return fmt.Sprintf("Time to take %s (%s) - %s", e.Name, e.Dosage, e.Frequency)
}

// Remind sends the reminder notification and starts the entry's tone.
func (d *Dispatcher) Remind(ctx context.Context, e medicine.Entry) {
	d.notify(ctx, e, Notification{
		Title:   ReminderTitle,
		Body:    ReminderBody(e),
		Icon:    d.icon,
		Tag:     Tag(e),
		EntryID: e.ID,
	})

	tone := e.CustomTone
	if tone == "" {
		tone = d.defaultTone
	}
	if tone == "" {
		return
	}
	if err := d.player.Play(ctx, tone); err != nil {
		d.log.WithError(err).WithField("entry_id", e.ID).Warn("audio cue failed")
	}
}

// Escalate raises the alert for a missed critical medicine.
func (d *Dispatcher) Escalate(ctx context.Context, e medicine.Entry) {
	d.notify(ctx, e, Notification{
		Title:   EscalatedTitle,
		Body:    fmt.Sprintf("%s (%s %s)", EscalatedBody, e.Name, e.Dosage),
		Icon:    d.icon,
		Tag:     Tag(e) + "-critical",
		EntryID: e.ID,
		Urgent:  true,
	})
}

// Silence stops any tone still playing.
func (d *Dispatcher) Silence() {
	if err := d.player.Stop(); err != nil {
		d.log.WithError(err).Warn("failed to stop audio cue")
	}
}

func (d *Dispatcher) notify(ctx context.Context, e medicine.Entry, n Notification) {
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.WithError(err).WithField("entry_id", e.ID).Warn("notification failed")
	}
}
