package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pharmtrack/internal/medicine"
)

var (
	ErrNoActiveReminder  = errors.New("no active reminder")
	ErrVoiceUnrecognized = errors.New("voice confirmation not recognized")
	ErrInvalidSnooze     = errors.New("snooze duration must be between 1 minute and 24 hours")
)

// MaxSnooze is the longest a reminder can be postponed.
const MaxSnooze = 24 * time.Hour

const (
	DefaultVoiceKeyword   = "taken"
	defaultDoseLogTimeout = 10 * time.Second
)

// Delivery is the notification surface the tracker drives.
type Delivery interface {
	Remind(ctx context.Context, e medicine.Entry)
	Escalate(ctx context.Context, e medicine.Entry)
	Silence()
}

// DoseLogger forwards dose outcomes to a remote collaborator.
type DoseLogger interface {
	LogDose(ctx context.Context, e medicine.Entry, ev medicine.DoseEvent) error
}

type nopDelivery struct{}

func (nopDelivery) Remind(context.Context, medicine.Entry)   {}
func (nopDelivery) Escalate(context.Context, medicine.Entry) {}
func (nopDelivery) Silence()                                 {}

// Outcome is the result of resolving the active reminder.
type Outcome struct {
	Entry     medicine.Entry      `json:"entry"`
	State     State               `json:"state"`
	Event     *medicine.DoseEvent `json:"event"`
	Escalated bool                `json:"escalated"`
}

type Options struct {
	Delivery       Delivery
	DoseLogger     DoseLogger // optional
	VoiceKeyword   string
	Location       *time.Location
	Now            func() time.Time
	DoseLogTimeout time.Duration
}

// Tracker serialises evaluation passes and user actions over the store. It
// keeps the pending reminders in firing order; the head is the active one.
type Tracker struct {
	mu    sync.Mutex
	store *Store
	queue []string

	delivery       Delivery
	doses          DoseLogger
	keyword        string
	loc            *time.Location
	now            func() time.Time
	doseLogTimeout time.Duration

	wg  sync.WaitGroup
	log logrus.FieldLogger
}

func NewTracker(store *Store, opts Options, log logrus.FieldLogger) *Tracker {
	t := &Tracker{
		store:          store,
		delivery:       opts.Delivery,
		doses:          opts.DoseLogger,
		keyword:        strings.ToLower(strings.TrimSpace(opts.VoiceKeyword)),
		loc:            opts.Location,
		now:            opts.Now,
		doseLogTimeout: opts.DoseLogTimeout,
		log:            log,
	}
	if t.delivery == nil {
		t.delivery = nopDelivery{}
	}
	if t.keyword == "" {
		t.keyword = DefaultVoiceKeyword
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.doseLogTimeout <= 0 {
		t.doseLogTimeout = defaultDoseLogTimeout
	}
	return t
}

func (t *Tracker) Store() *Store {
	return t.store
}

// Evaluate runs one pass of the trigger rules at now and delivers every entry
// that fired. The fired entries are returned in list order.
func (t *Tracker) Evaluate(ctx context.Context, now time.Time) []medicine.Entry {
	clock := medicine.Clock(now.In(t.loc))

	t.mu.Lock()
	var fired []medicine.Entry
	t.store.UpdateAll(func(e *medicine.Entry) bool {
		switch {
		case e.IsSnoozed(now):
			return false
		case e.TriggeredThisMinute(now, clock):
			return false
		case e.Time == clock:
			e.MarkTriggered(now, clock)
			if e.SnoozeElapsed(now) {
				e.SnoozedUntil = nil
			}
		case e.SnoozeElapsed(now):
			e.SnoozedUntil = nil
		default:
			return false
		}
		fired = append(fired, *e.Clone())
		return true
	})
	for _, e := range fired {
		t.store.RecordEvent(e.ID, medicine.ActionFired, now, clock)
		t.enqueueLocked(e.ID)
	}
	t.mu.Unlock()

	for _, e := range fired {
		t.log.WithFields(logrus.Fields{
			"entry_id": e.ID,
			"name":     e.Name,
			"time":     e.Time,
		}).Info("reminder fired")
		t.delivery.Remind(ctx, e)
	}
	return fired
}

// Trigger rings an entry immediately and makes it the active reminder.
func (t *Tracker) Trigger(ctx context.Context, id string) (*medicine.Entry, error) {
	t.mu.Lock()
	e, err := t.store.Get(id)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.dequeueLocked(id)
	t.queue = append([]string{id}, t.queue...)
	t.store.RecordEvent(id, medicine.ActionFired, t.now(), "manual")
	t.mu.Unlock()

	t.delivery.Remind(ctx, *e)
	return e, nil
}

// Active returns the reminder awaiting a user decision.
func (t *Tracker) Active() (*medicine.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.headLocked()
	if err != nil {
		return nil, false
	}
	return e, true
}

// Queue returns every pending reminder, active first.
func (t *Tracker) Queue() []*medicine.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*medicine.Entry, 0, len(t.queue))
	for _, id := range t.queue {
		if e, err := t.store.Get(id); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func (t *Tracker) State(id string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.store.Get(id)
	if err != nil {
		return "", err
	}
	for _, q := range t.queue {
		if q == id {
			return StatePending, nil
		}
	}
	if e.SnoozedUntil != nil {
		return StateSnoozed, nil
	}
	return StateIdle, nil
}

// Taken records the active dose as taken.
func (t *Tracker) Taken(ctx context.Context) (*Outcome, error) {
	return t.resolve(ctx, medicine.ActionTaken, "", func(e *medicine.Entry, now time.Time) {
		e.MarkTaken(now)
	})
}

// Missed records the active dose as missed and escalates critical medicines.
func (t *Tracker) Missed(ctx context.Context) (*Outcome, error) {
	return t.resolve(ctx, medicine.ActionMissed, "", func(e *medicine.Entry, _ time.Time) {
		e.MarkMissed()
	})
}

// Snooze postpones the active reminder by d.
func (t *Tracker) Snooze(ctx context.Context, d time.Duration) (*Outcome, error) {
	if d <= 0 || d > MaxSnooze {
		return nil, ErrInvalidSnooze
	}
	return t.resolve(ctx, medicine.ActionSnoozed, d.String(), func(e *medicine.Entry, now time.Time) {
		e.Snooze(now.Add(d))
	})
}

// Dismiss closes the active reminder for the current minute without
// touching the counters.
func (t *Tracker) Dismiss(ctx context.Context) (*Outcome, error) {
	return t.resolve(ctx, medicine.ActionDismissed, "", func(e *medicine.Entry, now time.Time) {
		e.MarkTriggered(now, medicine.Clock(now.In(t.loc)))
	})
}

// VoiceConfirm marks the active dose taken when the transcript contains the
// confirmation keyword.
func (t *Tracker) VoiceConfirm(ctx context.Context, transcript string) (*Outcome, error) {
	heard := strings.ToLower(strings.TrimSpace(transcript))
	if !strings.Contains(heard, t.keyword) {
		return nil, fmt.Errorf("%w: heard %q, say %q to confirm taken", ErrVoiceUnrecognized, heard, t.keyword)
	}
	return t.Taken(ctx)
}

// Remove deletes an entry and drops it from the pending queue.
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Remove(id); err != nil {
		return err
	}
	t.dequeueLocked(id)
	return nil
}

// Reset clears every entry, the dose history and the pending queue.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.store.Reset()
	t.queue = nil
	t.mu.Unlock()

	t.delivery.Silence()
}

// Wait blocks until in-flight dose logs have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) resolve(ctx context.Context, action medicine.Action, detail string, apply func(e *medicine.Entry, now time.Time)) (*Outcome, error) {
	t.mu.Lock()
	active, err := t.headLocked()
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	now := t.now()
	updated, err := t.store.Update(active.ID, func(e *medicine.Entry) { apply(e, now) })
	if err != nil {
		t.dequeueLocked(active.ID)
		t.mu.Unlock()
		return nil, ErrNoActiveReminder
	}
	t.dequeueLocked(active.ID)
	ev := t.store.RecordEvent(updated.ID, action, now, detail)
	t.mu.Unlock()

	out := &Outcome{Entry: *updated, Event: ev, State: stateAfter(action)}

	t.delivery.Silence()
	if action == medicine.ActionMissed && updated.Critical {
		t.delivery.Escalate(ctx, *updated)
		out.Escalated = true
	}
	t.log.WithFields(logrus.Fields{
		"entry_id":  updated.ID,
		"action":    action,
		"escalated": out.Escalated,
	}).Info("reminder resolved")

	t.forward(*updated, *ev)
	return out, nil
}

func stateAfter(action medicine.Action) State {
	switch action {
	case medicine.ActionTaken:
		return StateTaken
	case medicine.ActionMissed:
		return StateMissed
	case medicine.ActionSnoozed:
		return StateSnoozed
	default:
		return StateIdle
	}
}

// forward sends the dose log without blocking the caller.
func (t *Tracker) forward(e medicine.Entry, ev medicine.DoseEvent) {
	if t.doses == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.doseLogTimeout)
		defer cancel()
		if err := t.doses.LogDose(ctx, e, ev); err != nil {
			t.log.WithError(err).WithField("entry_id", e.ID).Warn("failed to forward dose log")
		}
	}()
}

// headLocked returns the active entry, dropping queue ids whose entries no
// longer exist.
func (t *Tracker) headLocked() (*medicine.Entry, error) {
	for len(t.queue) > 0 {
		e, err := t.store.Get(t.queue[0])
		if err == nil {
			return e, nil
		}
		t.queue = t.queue[1:]
	}
	return nil, ErrNoActiveReminder
}

func (t *Tracker) enqueueLocked(id string) {
	for _, q := range t.queue {
		if q == id {
			return
		}
	}
	t.queue = append(t.queue, id)
}

func (t *Tracker) dequeueLocked(id string) {
	for i, q := range t.queue {
		if q == id {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return
		}
	}
}
