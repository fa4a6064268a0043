// Package backend talks to the PharmTrack auth and logging service.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pharmtrack/internal/config"
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/platform/httpclient"
)

const (
	loginPath      = "/api/auth/login"
	signupPath     = "/api/auth/signup"
	logSymptomPath = "/log-symptom"
)

var (
	ErrRejected      = errors.New("backend rejected the request")
	ErrNotConfigured = errors.New("backend url not configured")
)

type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResponse is the envelope returned by login and signup.
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// SymptomLog is one symptom assessment forwarded for record keeping.
type SymptomLog struct {
	InputSymptom       string `json:"inputSymptom"`
	Age                string `json:"age,omitempty"`
	Duration           string `json:"duration,omitempty"`
	AdditionalSymptoms string `json:"additionalSymptoms,omitempty"`
	Condition          string `json:"condition,omitempty"`
	Severity           string `json:"severity,omitempty"`
	Advice             string `json:"advice,omitempty"`
	Timestamp          string `json:"timestamp,omitempty"`
}

// DoseLog is the record posted for every reminder outcome.
type DoseLog struct {
	EntryID   string          `json:"entry_id"`
	Name      string          `json:"name"`
	Dosage    string          `json:"dosage"`
	Time      string          `json:"time"`
	Critical  bool            `json:"critical"`
	Action    medicine.Action `json:"action"`
	Detail    string          `json:"detail,omitempty"`
	At        time.Time       `json:"at"`
	Taken     int             `json:"taken_count"`
	Missed    int             `json:"missed_count"`
	UserEmail string          `json:"user_email,omitempty"`
}

type Client struct {
	http        *httpclient.Client
	doseLogPath string
	log         logrus.FieldLogger

	mu    sync.RWMutex
	token string
	user  *User
}

func New(cfg config.BackendConfig, log logrus.FieldLogger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNotConfigured
	}
	hc, err := httpclient.NewWithBaseURL(cfg.URL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	path := cfg.DoseLogPath
	if path == "" {
		path = "/log-dose"
	}
	return &Client{http: hc, doseLogPath: path, log: log}, nil
}

// Login exchanges credentials for a token that later requests carry.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	in := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, loginPath, in)
}

func (c *Client) Signup(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	in := map[string]string{"name": name, "email": email, "password": password}
	return c.authenticate(ctx, signupPath, in)
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (*AuthResponse, error) {
	var out AuthResponse
	err := c.http.DoJSON(ctx, http.MethodPost, path, nil, in, &out)
	if err != nil {
		// the service answers 4xx with the same envelope
		var herr *httpclient.HTTPError
		if !errors.As(err, &herr) {
			return nil, fmt.Errorf("failed to reach backend: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, herr.Body)
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return &out, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	c.mu.Lock()
	c.token = out.Token
	c.user = out.User
	c.mu.Unlock()
	return &out, nil
}

// User returns the logged in user, if any.
func (c *Client) User() (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.user != nil
}

func (c *Client) LogSymptom(ctx context.Context, s SymptomLog) error {
	if err := c.http.DoJSON(ctx, http.MethodPost, logSymptomPath, c.authHeaders(), s, nil); err != nil {
		return fmt.Errorf("failed to log symptom: %w", err)
	}
	return nil
}

// LogDose posts the outcome of a reminder.
func (c *Client) LogDose(ctx context.Context, e medicine.Entry, ev medicine.DoseEvent) error {
	body := DoseLog{
		EntryID:  e.ID,
		Name:     e.Name,
		Dosage:   e.Dosage,
		Time:     e.Time,
		Critical: e.Critical,
		Action:   ev.Action,
		Detail:   ev.Detail,
		At:       ev.At,
		Taken:    e.TakenCount,
		Missed:   e.MissedCount,
	}
	if u, ok := c.User(); ok {
		body.UserEmail = u.Email
	}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.doseLogPath, c.authHeaders(), body, nil); err != nil {
		return fmt.Errorf("failed to log dose: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"action":   ev.Action,
	}).Debug("dose logged to backend")
	return nil
}

func (c *Client) authHeaders() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}
