// Package client is a typed client for the pharmtrack HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pharmtrack/internal/medicine"
	"pharmtrack/internal/platform/httpclient"
	"pharmtrack/internal/reminder"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s)", e.Message, e.Field)
	}
	return e.Message
}

type Client struct {
	http  *httpclient.Client
	token string
}

// New returns a client for the daemon at baseURL. token is sent as a bearer
// token when set.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	hc, err := httpclient.NewWithBaseURL(baseURL, timeout)
	if err != nil {
		return nil, err
	}
	if hc.BaseURL == "" {
		return nil, errors.New("client: base url required")
	}
	return &Client{http: hc, token: token}, nil
}

func (c *Client) List(ctx context.Context) ([]*medicine.Entry, error) {
	var out []*medicine.Entry
	if err := c.do(ctx, http.MethodGet, "/medicines", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Add(ctx context.Context, in reminder.AddInput) (*medicine.Entry, error) {
	var out medicine.Entry
	if err := c.do(ctx, http.MethodPost, "/medicines", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/medicines/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/medicines", nil, nil)
}

func (c *Client) Events(ctx context.Context, id string) ([]*medicine.DoseEvent, error) {
	var out []*medicine.DoseEvent
	if err := c.do(ctx, http.MethodGet, "/medicines/"+url.PathEscape(id)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Trigger(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/medicines/"+url.PathEscape(id)+"/trigger", nil, nil)
}

func (c *Client) Schedule(ctx context.Context) ([]reminder.ScheduleGroup, error) {
	var out []reminder.ScheduleGroup
	if err := c.do(ctx, http.MethodGet, "/schedule", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (*reminder.Stats, error) {
	var out reminder.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Active(ctx context.Context) (*reminder.ActiveView, error) {
	var out reminder.ActiveView
	if err := c.do(ctx, http.MethodGet, "/reminder", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Taken(ctx context.Context) (*reminder.Outcome, error) {
	return c.resolve(ctx, "taken", nil)
}

func (c *Client) Missed(ctx context.Context) (*reminder.Outcome, error) {
	return c.resolve(ctx, "missed", nil)
}

func (c *Client) Snooze(ctx context.Context, minutes int) (*reminder.Outcome, error) {
	return c.resolve(ctx, "snooze", map[string]int{"minutes": minutes})
}

func (c *Client) Dismiss(ctx context.Context) (*reminder.Outcome, error) {
	return c.resolve(ctx, "dismiss", nil)
}

func (c *Client) Voice(ctx context.Context, transcript string) (*reminder.Outcome, error) {
	return c.resolve(ctx, "voice", map[string]string{"transcript": transcript})
}

func (c *Client) resolve(ctx context.Context, action string, in any) (*reminder.Outcome, error) {
	var out reminder.Outcome
	if err := c.do(ctx, http.MethodPost, "/reminder/"+action, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var headers map[string]string
	if c.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.token}
	}
	err := c.http.DoJSON(ctx, method, path, headers, in, out)
	var herr *httpclient.HTTPError
	if errors.As(err, &herr) {
		apiErr := &APIError{Status: herr.StatusCode, Message: herr.Body}
		var body struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal([]byte(herr.Body), &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Field = body.Field
		}
		return apiErr
	}
	return err
}
