package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmtrack/internal/logging"
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/storage"
)

type fakeDelivery struct {
	mu        sync.Mutex
	reminded  []string
	escalated []string
	silenced  int
}

func (f *fakeDelivery) Remind(_ context.Context, e medicine.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, e.ID)
}

func (f *fakeDelivery) Escalate(_ context.Context, e medicine.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalated = append(f.escalated, e.ID)
}

func (f *fakeDelivery) Silence() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silenced++
}

type fakeDoseLogger struct {
	mu     sync.Mutex
	logged []medicine.Action
	err    error
}

func (f *fakeDoseLogger) LogDose(_ context.Context, _ medicine.Entry, ev medicine.DoseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, ev.Action)
	return f.err
}

type fixture struct {
	tracker  *Tracker
	store    *Store
	backend  *storage.MemoryStorage
	clock    *clock
	delivery *fakeDelivery
	doses    *fakeDoseLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{}
	c.Set("07:00", 0)
	backend := storage.NewMemoryStorage()
	store := NewStore(backend, logging.Discard(), c.Now)
	delivery := &fakeDelivery{}
	doses := &fakeDoseLogger{}
	tracker := NewTracker(store, Options{
		Delivery:   delivery,
		DoseLogger: doses,
		Location:   time.UTC,
		Now:        c.Now,
	}, logging.Discard())
	return &fixture{tracker: tracker, store: store, backend: backend, clock: c, delivery: delivery, doses: doses}
}

func (f *fixture) add(t *testing.T, in AddInput) *medicine.Entry {
	t.Helper()
	e, err := f.store.Add(in)
	require.NoError(t, err)
	return e
}

func (f *fixture) evaluateAt(hhmm string, sec int) []medicine.Entry {
	f.clock.Set(hhmm, sec)
	return f.tracker.Evaluate(context.Background(), f.clock.Now())
}

func (f *fixture) get(t *testing.T, id string) *medicine.Entry {
	t.Helper()
	e, err := f.store.Get(id)
	require.NoError(t, err)
	return e
}

func TestEvaluateFiresOncePerMinute(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())

	assert.Empty(t, f.evaluateAt("07:59", 50))

	fired := f.evaluateAt("08:00", 5)
	require.Len(t, fired, 1)
	assert.Equal(t, e.ID, fired[0].ID)
	assert.Equal(t, "08:00", f.get(t, e.ID).LastTriggered)

	assert.Empty(t, f.evaluateAt("08:00", 20))
	assert.Empty(t, f.evaluateAt("08:00", 35))
	assert.Equal(t, []string{e.ID}, f.delivery.reminded)

	active, ok := f.tracker.Active()
	require.True(t, ok)
	assert.Equal(t, e.ID, active.ID)

	events, err := f.store.Events(e.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, medicine.ActionFired, events[0].Action)
}

func TestEvaluateFiresAgainNextDay(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())

	require.Len(t, f.evaluateAt("08:00", 0), 1)
	_, err := f.tracker.Taken(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.evaluateAt("12:00", 0))
	// same clock time on the following day
	f.clock.t = f.clock.t.Add(20 * time.Hour)
	fired := f.tracker.Evaluate(context.Background(), f.clock.Now())
	require.Len(t, fired, 1)
	assert.Equal(t, e.ID, fired[0].ID)
}

func TestAspirinScenario(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	ctx := context.Background()

	require.Len(t, f.evaluateAt("08:00", 5), 1)

	f.clock.Set("08:00", 10)
	out, err := f.tracker.Snooze(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateSnoozed, out.State)

	state, err := f.tracker.State(e.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSnoozed, state)

	assert.Empty(t, f.evaluateAt("08:03", 0))

	fired := f.evaluateAt("08:05", 15)
	require.Len(t, fired, 1)
	got := f.get(t, e.ID)
	assert.Nil(t, got.SnoozedUntil)
	assert.Equal(t, "08:00", got.LastTriggered)

	f.clock.Set("08:05", 30)
	out, err = f.tracker.Taken(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTaken, out.State)
	assert.Equal(t, 1, out.Entry.TakenCount)
	require.NotNil(t, out.Entry.LastTaken)
	assert.True(t, f.clock.Now().Equal(*out.Entry.LastTaken))

	_, ok := f.tracker.Active()
	assert.False(t, ok)
	state, err = f.tracker.State(e.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	f.tracker.Wait()
	assert.ElementsMatch(t, []medicine.Action{medicine.ActionSnoozed, medicine.ActionTaken}, f.doses.logged)
}

func TestSnoozeElapsedOnScheduledMinuteFiresOnce(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())

	until := time.Date(2025, 5, 21, 7, 59, 30, 0, time.UTC)
	_, err := f.store.Update(e.ID, func(e *medicine.Entry) { e.Snooze(until) })
	require.NoError(t, err)

	require.Len(t, f.evaluateAt("08:00", 0), 1)
	got := f.get(t, e.ID)
	assert.Nil(t, got.SnoozedUntil)
	assert.Equal(t, "08:00", got.LastTriggered)

	assert.Empty(t, f.evaluateAt("08:00", 15))
}

func TestActiveSnoozeSuppressesScheduledTime(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())

	until := time.Date(2025, 5, 21, 8, 1, 0, 0, time.UTC)
	_, err := f.store.Update(e.ID, func(e *medicine.Entry) { e.Snooze(until) })
	require.NoError(t, err)

	assert.Empty(t, f.evaluateAt("08:00", 0))
	assert.Len(t, f.evaluateAt("08:01", 0), 1)
}

func TestTakenCountsAndPersists(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	_, err := f.tracker.Taken(context.Background())
	require.NoError(t, err)

	saved, err := f.backend.LoadEntries()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].TakenCount)
	assert.Equal(t, 1, f.delivery.silenced)

	events, err := f.store.Events(e.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, medicine.ActionTaken, events[1].Action)
}

func TestMissedEscalatesCritical(t *testing.T) {
	f := newFixture(t)
	in := aspirinInput()
	in.Critical = true
	e := f.add(t, in)
	f.evaluateAt("08:00", 0)

	out, err := f.tracker.Missed(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Escalated)
	assert.Equal(t, StateMissed, out.State)
	assert.Equal(t, 1, out.Entry.MissedCount)
	assert.Equal(t, []string{e.ID}, f.delivery.escalated)
}

func TestMissedNonCriticalDoesNotEscalate(t *testing.T) {
	f := newFixture(t)
	f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	out, err := f.tracker.Missed(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Escalated)
	assert.Empty(t, f.delivery.escalated)
}

func TestDismissKeepsCounters(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	f.clock.Set("08:00", 40)
	out, err := f.tracker.Dismiss(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, out.State)

	got := f.get(t, e.ID)
	assert.Zero(t, got.TakenCount)
	assert.Zero(t, got.MissedCount)
	assert.Equal(t, "08:00", got.LastTriggered)
	assert.Empty(t, f.evaluateAt("08:00", 50))
}

func TestActionsWithoutActiveReminder(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	ctx := context.Background()

	_, err := f.tracker.Taken(ctx)
	assert.ErrorIs(t, err, ErrNoActiveReminder)
	_, err = f.tracker.Missed(ctx)
	assert.ErrorIs(t, err, ErrNoActiveReminder)
	_, err = f.tracker.Snooze(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrNoActiveReminder)
	_, err = f.tracker.Dismiss(ctx)
	assert.ErrorIs(t, err, ErrNoActiveReminder)
	_, err = f.tracker.VoiceConfirm(ctx, "I have taken it")
	assert.ErrorIs(t, err, ErrNoActiveReminder)

	got := f.get(t, e.ID)
	assert.Zero(t, got.TakenCount)
	assert.Zero(t, got.MissedCount)
	assert.Nil(t, got.SnoozedUntil)
}

func TestSnoozeRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	for _, d := range []time.Duration{0, -time.Minute, MaxSnooze + time.Minute} {
		_, err := f.tracker.Snooze(context.Background(), d)
		assert.ErrorIs(t, err, ErrInvalidSnooze, d.String())
	}
	_, ok := f.tracker.Active()
	assert.True(t, ok)
}

func TestVoiceConfirm(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)
	ctx := context.Background()

	_, err := f.tracker.VoiceConfirm(ctx, "what time is it")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVoiceUnrecognized))
	assert.Contains(t, err.Error(), "what time is it")

	out, err := f.tracker.VoiceConfirm(ctx, "OK, Taken!")
	require.NoError(t, err)
	assert.Equal(t, e.ID, out.Entry.ID)
	assert.Equal(t, 1, out.Entry.TakenCount)
}

func TestVoiceKeywordIsConfigurable(t *testing.T) {
	store := NewStore(storage.NewMemoryStorage(), logging.Discard(), nil)
	tr := NewTracker(store, Options{VoiceKeyword: "Done", Location: time.UTC}, logging.Discard())
	e, err := store.Add(aspirinInput())
	require.NoError(t, err)
	_, err = tr.Trigger(context.Background(), e.ID)
	require.NoError(t, err)

	_, err = tr.VoiceConfirm(context.Background(), "taken")
	assert.ErrorIs(t, err, ErrVoiceUnrecognized)
	_, err = tr.VoiceConfirm(context.Background(), "all done")
	assert.NoError(t, err)
}

func TestQueuePromotesNextReminder(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, aspirinInput())
	b := f.add(t, AddInput{Name: "Vitamin D", Dosage: "1000IU", Frequency: "daily", Time: "08:00"})

	fired := f.evaluateAt("08:00", 0)
	require.Len(t, fired, 2)
	assert.Len(t, f.tracker.Queue(), 2)

	// list order is newest first, so b fires and queues ahead of a
	first, ok := f.tracker.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, first.ID)

	_, err := f.tracker.Taken(context.Background())
	require.NoError(t, err)

	next, ok := f.tracker.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, next.ID)

	state, err := f.tracker.State(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
}

func TestTriggerMovesEntryToFront(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, aspirinInput())
	b := f.add(t, AddInput{Name: "Vitamin D", Dosage: "1000IU", Frequency: "daily", Time: "09:00"})
	f.evaluateAt("08:00", 0)

	_, err := f.tracker.Trigger(context.Background(), b.ID)
	require.NoError(t, err)

	q := f.tracker.Queue()
	require.Len(t, q, 2)
	assert.Equal(t, b.ID, q[0].ID)
	assert.Equal(t, a.ID, q[1].ID)

	_, err = f.tracker.Trigger(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveDropsPendingReminder(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	require.NoError(t, f.tracker.Remove(e.ID))
	_, ok := f.tracker.Active()
	assert.False(t, ok)

	_, err := f.tracker.State(e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	f.tracker.Reset()
	assert.Empty(t, f.store.List())
	assert.Empty(t, f.tracker.Queue())
	saved, err := f.backend.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestDoseLogFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.doses.err = errors.New("backend down")
	f.add(t, aspirinInput())
	f.evaluateAt("08:00", 0)

	out, err := f.tracker.Taken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Entry.TakenCount)
	f.tracker.Wait()
	assert.Len(t, f.doses.logged, 1)
}

func TestRunEvaluatesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.add(t, aspirinInput())
	f.clock.Set("08:00", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.tracker.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := f.tracker.Active()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.delivery.mu.Lock()
	defer f.delivery.mu.Unlock()
	assert.Len(t, f.delivery.reminded, 1)
}
