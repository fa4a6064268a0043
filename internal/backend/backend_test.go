package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmtrack/internal/config"
	"pharmtrack/internal/logging"
	"pharmtrack/internal/medicine"
)

type fakeService struct {
	doses    []DoseLog
	symptoms []SymptomLog
	authz    []string
}

func (f *fakeService) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "secret" {
			json.NewEncoder(w).Encode(AuthResponse{Success: false, Message: "Invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(AuthResponse{
			Success: true,
			Token:   "tok-123",
			User:    &User{ID: "u1", Name: "Asha", Email: in["email"]},
		})
	}).Methods("POST")
	r.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(AuthResponse{Message: "User already exists"})
			return
		}
		json.NewEncoder(w).Encode(AuthResponse{Success: true, Token: "tok-new", User: &User{Name: in["name"], Email: in["email"]}})
	}).Methods("POST")
	r.HandleFunc("/log-dose", func(w http.ResponseWriter, r *http.Request) {
		var d DoseLog
		json.NewDecoder(r.Body).Decode(&d)
		f.doses = append(f.doses, d)
		f.authz = append(f.authz, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}).Methods("POST")
	r.HandleFunc("/log-symptom", func(w http.ResponseWriter, r *http.Request) {
		var s SymptomLog
		json.NewDecoder(r.Body).Decode(&s)
		f.symptoms = append(f.symptoms, s)
		json.NewEncoder(w).Encode(map[string]string{"status": "logged"})
	}).Methods("POST")
	return r
}

func newTestClient(t *testing.T) (*Client, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	ts := httptest.NewServer(svc.router())
	t.Cleanup(ts.Close)

	c, err := New(config.BackendConfig{URL: ts.URL, Timeout: time.Second}, logging.Discard())
	require.NoError(t, err)
	return c, svc
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(config.BackendConfig{}, logging.Discard())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", resp.Token)

	u, ok := c.User()
	require.True(t, ok)
	assert.Equal(t, "asha@example.com", u.Email)
}

func TestLoginRejected(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.Login(context.Background(), "asha@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.False(t, resp.Success)

	_, ok := c.User()
	assert.False(t, ok)
}

func TestSignup(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.Signup(context.Background(), "Asha", "asha@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Asha", resp.User.Name)

	_, err = c.Signup(context.Background(), "Asha", "taken@example.com", "secret")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestLogDoseCarriesToken(t *testing.T) {
	c, svc := newTestClient(t)
	e := medicine.Entry{ID: "med1", Name: "Aspirin", Dosage: "500mg", Time: "08:00", TakenCount: 1}
	ev := medicine.DoseEvent{ID: "ev1", EntryID: "med1", Action: medicine.ActionTaken, At: time.Now().UTC()}

	require.NoError(t, c.LogDose(context.Background(), e, ev))
	_, err := c.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, c.LogDose(context.Background(), e, ev))

	require.Len(t, svc.doses, 2)
	assert.Equal(t, medicine.ActionTaken, svc.doses[0].Action)
	assert.Equal(t, 1, svc.doses[0].Taken)
	assert.Empty(t, svc.doses[0].UserEmail)
	assert.Equal(t, "asha@example.com", svc.doses[1].UserEmail)
	assert.Equal(t, []string{"", "Bearer tok-123"}, svc.authz)
}

func TestLogSymptom(t *testing.T) {
	c, svc := newTestClient(t)

	require.NoError(t, c.LogSymptom(context.Background(), SymptomLog{InputSymptom: "headache", Severity: "mild"}))
	require.Len(t, svc.symptoms, 1)
	assert.Equal(t, "headache", svc.symptoms[0].InputSymptom)
}

func TestLogDoseUnreachable(t *testing.T) {
	c, err := New(config.BackendConfig{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)
	assert.Error(t, c.LogDose(context.Background(), medicine.Entry{ID: "x"}, medicine.DoseEvent{}))
}
