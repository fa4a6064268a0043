package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmtrack/internal/handlers"
	"pharmtrack/internal/logging"
	"pharmtrack/internal/middleware"
	"pharmtrack/internal/reminder"
	"pharmtrack/internal/storage"
)

func newServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	store := reminder.NewStore(storage.NewMemoryStorage(), logging.Discard(), nil)
	tracker := reminder.NewTracker(store, reminder.Options{Location: time.UTC}, logging.Discard())

	r := mux.NewRouter()
	r.Use(middleware.Auth(secret, logging.Discard()))
	handlers.New(tracker, nil, logging.Discard()).Register(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientRoundTrip(t *testing.T) {
	ts := newServer(t, "")
	c, err := New(ts.URL, "", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	e, err := c.Add(ctx, reminder.AddInput{Name: "Aspirin", Dosage: "500mg", Frequency: "daily", Time: "08:00"})
	require.NoError(t, err)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.Trigger(ctx, e.ID))
	view, err := c.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.Active)
	assert.Equal(t, e.ID, view.Active.ID)

	out, err := c.Snooze(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, reminder.StateSnoozed, out.State)

	require.NoError(t, c.Trigger(ctx, e.ID))
	out, err = c.Voice(ctx, "taken")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Entry.TakenCount)

	events, err := c.Events(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, events, 4)

	groups, err := c.Schedule(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Taken)

	require.NoError(t, c.Remove(ctx, e.ID))
	require.NoError(t, c.Reset(ctx))
}

func TestClientAPIError(t *testing.T) {
	ts := newServer(t, "")
	c, err := New(ts.URL, "", time.Second)
	require.NoError(t, err)

	_, err = c.Taken(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "no active reminder", apiErr.Message)

	_, err = c.Add(context.Background(), reminder.AddInput{Name: "x"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "dosage", apiErr.Field)
}

func TestClientSendsToken(t *testing.T) {
	ts := newServer(t, "s3cret")

	anon, err := New(ts.URL, "", time.Second)
	require.NoError(t, err)
	_, err = anon.List(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("", "", time.Second)
	assert.Error(t, err)
}
