package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pharmtrack/internal/backend"
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/reminder"
)

// DefaultSnooze applies when a snooze request names no duration.
const DefaultSnooze = 5 * time.Minute

// SymptomLogger forwards symptom assessments to the backend.
type SymptomLogger interface {
	LogSymptom(ctx context.Context, s backend.SymptomLog) error
}

// Accounts authenticates against the backend on behalf of the daemon user.
type Accounts interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	Signup(ctx context.Context, name, email, password string) (*backend.AuthResponse, error)
}

// API serves the reminder routes over a Tracker.
type API struct {
	tracker  *reminder.Tracker
	symptoms SymptomLogger
	accounts Accounts
	log      logrus.FieldLogger
}

// New builds the API. symptoms may be nil when no backend is configured.
func New(tracker *reminder.Tracker, symptoms SymptomLogger, log logrus.FieldLogger) *API {
	return &API{tracker: tracker, symptoms: symptoms, log: log}
}

// WithAccounts enables the login and signup routes. accounts may be nil.
func (a *API) WithAccounts(accounts Accounts) *API {
	a.accounts = accounts
	return a
}

func (a *API) Register(r *mux.Router) {
	// Medicine routes
	r.HandleFunc("/medicines", a.CreateMedicineHandler).Methods("POST")
	r.HandleFunc("/medicines", a.ListMedicinesHandler).Methods("GET")
	r.HandleFunc("/medicines", a.ResetMedicinesHandler).Methods("DELETE")
	r.HandleFunc("/medicines/{id}", a.GetMedicineHandler).Methods("GET")
	r.HandleFunc("/medicines/{id}", a.DeleteMedicineHandler).Methods("DELETE")
	r.HandleFunc("/medicines/{id}/events", a.ListDoseEventsHandler).Methods("GET")
	r.HandleFunc("/medicines/{id}/events/{eventID}", a.GetDoseEventHandler).Methods("GET")
	r.HandleFunc("/medicines/{id}/trigger", a.TriggerHandler).Methods("POST")

	// Views
	r.HandleFunc("/schedule", a.ScheduleHandler).Methods("GET")
	r.HandleFunc("/stats", a.StatsHandler).Methods("GET")

	// Active reminder routes
	r.HandleFunc("/reminder", a.ActiveReminderHandler).Methods("GET")
	r.HandleFunc("/reminder/taken", a.TakenHandler).Methods("POST")
	r.HandleFunc("/reminder/missed", a.MissedHandler).Methods("POST")
	r.HandleFunc("/reminder/snooze", a.SnoozeHandler).Methods("POST")
	r.HandleFunc("/reminder/dismiss", a.DismissHandler).Methods("POST")
	r.HandleFunc("/reminder/voice", a.VoiceHandler).Methods("POST")

	r.HandleFunc("/symptoms", a.LogSymptomHandler).Methods("POST")
}

// RegisterAccounts adds the login and signup routes. They are meant to be
// mounted outside the token check.
func (a *API) RegisterAccounts(r *mux.Router) {
	r.HandleFunc("/login", a.LoginHandler).Methods("POST")
	r.HandleFunc("/signup", a.SignupHandler).Methods("POST")
}

// HealthHandler is registered outside the authenticated routes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Medicine handlers
func (a *API) CreateMedicineHandler(w http.ResponseWriter, r *http.Request) {
	var in reminder.AddInput
	if !a.decode(w, r, &in) {
		return
	}
	e, err := a.tracker.Store().Add(in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, e)
}

func (a *API) ListMedicinesHandler(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, a.tracker.Store().List())
}

func (a *API) GetMedicineHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, err := a.tracker.Store().Get(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	state, err := a.tracker.State(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, medicineView{Entry: e, State: state})
}

func (a *API) DeleteMedicineHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.tracker.Remove(mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusNoContent, nil)
}

func (a *API) ResetMedicinesHandler(w http.ResponseWriter, r *http.Request) {
	a.tracker.Reset()
	a.respond(w, r, http.StatusNoContent, nil)
}

func (a *API) ListDoseEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := a.tracker.Store().Events(mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if events == nil {
		events = []*medicine.DoseEvent{}
	}
	a.respond(w, r, http.StatusOK, events)
}

func (a *API) GetDoseEventHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ev, err := a.tracker.Store().Event(vars["id"], vars["eventID"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ev)
}

func (a *API) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	e, err := a.tracker.Trigger(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, e)
}

// View handlers
func (a *API) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, reminder.Schedule(a.tracker.Store().List()))
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, a.tracker.Store().Stats())
}

// Active reminder handlers
func (a *API) ActiveReminderHandler(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, a.tracker.ActiveView())
}

func (a *API) TakenHandler(w http.ResponseWriter, r *http.Request) {
	a.outcome(w, r)(a.tracker.Taken(r.Context()))
}

func (a *API) MissedHandler(w http.ResponseWriter, r *http.Request) {
	a.outcome(w, r)(a.tracker.Missed(r.Context()))
}

func (a *API) SnoozeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes *int `json:"minutes"`
	}
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	d := DefaultSnooze
	if req.Minutes != nil {
		// Bounded before converting so a huge value cannot wrap.
		if *req.Minutes <= 0 || *req.Minutes > int(reminder.MaxSnooze/time.Minute) {
			a.fail(w, r, reminder.ErrInvalidSnooze)
			return
		}
		d = time.Duration(*req.Minutes) * time.Minute
	}
	a.outcome(w, r)(a.tracker.Snooze(r.Context(), d))
}

func (a *API) DismissHandler(w http.ResponseWriter, r *http.Request) {
	a.outcome(w, r)(a.tracker.Dismiss(r.Context()))
}

func (a *API) VoiceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript string `json:"transcript"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	a.outcome(w, r)(a.tracker.VoiceConfirm(r.Context(), req.Transcript))
}

func (a *API) LogSymptomHandler(w http.ResponseWriter, r *http.Request) {
	if a.symptoms == nil {
		a.respondError(w, r, http.StatusServiceUnavailable, errors.New("no backend configured"))
		return
	}
	var s backend.SymptomLog
	if !a.decode(w, r, &s) {
		return
	}
	if s.InputSymptom == "" {
		a.respondError(w, r, http.StatusBadRequest, errors.New("inputSymptom is required"))
		return
	}
	if err := a.symptoms.LogSymptom(r.Context(), s); err != nil {
		a.respondError(w, r, http.StatusBadGateway, err)
		return
	}
	a.respond(w, r, http.StatusAccepted, map[string]string{"status": "logged"})
}

// Account handlers
type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, false)
}

func (a *API) SignupHandler(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, true)
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request, signup bool) {
	if a.accounts == nil {
		a.respondError(w, r, http.StatusServiceUnavailable, errors.New("no backend configured"))
		return
	}
	var in credentials
	if !a.decode(w, r, &in) {
		return
	}
	required := [][2]string{{"email", in.Email}, {"password", in.Password}}
	if signup {
		required = append([][2]string{{"name", in.Name}}, required...)
	}
	for _, f := range required {
		if f[1] == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: f[0] + " is required", Field: f[0]})
			a.access(r, http.StatusBadRequest).Warn("bad request")
			return
		}
	}

	var (
		out *backend.AuthResponse
		err error
	)
	if signup {
		out, err = a.accounts.Signup(r.Context(), in.Name, in.Email, in.Password)
	} else {
		out, err = a.accounts.Login(r.Context(), in.Email, in.Password)
	}
	switch {
	case errors.Is(err, backend.ErrRejected):
		a.respondError(w, r, http.StatusUnauthorized, err)
	case err != nil:
		a.respondError(w, r, http.StatusBadGateway, err)
	default:
		a.respond(w, r, http.StatusOK, out)
	}
}

func (a *API) outcome(w http.ResponseWriter, r *http.Request) func(*reminder.Outcome, error) {
	return func(out *reminder.Outcome, err error) {
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.respond(w, r, http.StatusOK, out)
	}
}

// decode reads the JSON body into v. The raw body is logged on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.respondError(w, r, http.StatusBadRequest, errors.New("failed to read request body"))
		return false
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		a.access(r, http.StatusBadRequest).WithError(err).WithField("body", string(body)).Warn("bad request")
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *medicine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
		a.access(r, http.StatusBadRequest).WithError(err).Warn("bad request")
	case errors.Is(err, reminder.ErrNotFound), errors.Is(err, reminder.ErrEventNotFound):
		a.respondError(w, r, http.StatusNotFound, err)
	case errors.Is(err, reminder.ErrNoActiveReminder):
		a.respondError(w, r, http.StatusConflict, err)
	case errors.Is(err, reminder.ErrInvalidSnooze):
		a.respondError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, reminder.ErrVoiceUnrecognized):
		a.respondError(w, r, http.StatusUnprocessableEntity, err)
	default:
		a.respondError(w, r, http.StatusInternalServerError, err)
	}
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
	} else {
		writeJSON(w, status, v)
	}
	a.access(r, status).Info("request")
}

func (a *API) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
	entry := a.access(r, status).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		return
	}
	entry.Warn("request rejected")
}

func (a *API) access(r *http.Request, status int) *logrus.Entry {
	return a.log.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"user_agent": r.UserAgent(),
		"status":     status,
		"request_id": chimw.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
