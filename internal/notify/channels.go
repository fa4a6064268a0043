package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"

	"pharmtrack/internal/platform/httpclient"
)

// LogNotifier writes notifications to the process log.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	entry := l.log.WithFields(logrus.Fields{
		"title":    n.Title,
		"tag":      n.Tag,
		"entry_id": n.EntryID,
	})
	if n.Urgent {
		entry.Warn(n.Body)
		return nil
	}
	entry.Info(n.Body)
	return nil
}

// WebhookNotifier posts each notification as JSON to a fixed URL
// (ntfy, gotify, a push relay...).
type WebhookNotifier struct {
	client *httpclient.Client
	url    string
}

func NewWebhookNotifier(client *httpclient.Client, url string) *WebhookNotifier {
	return &WebhookNotifier{client: client, url: url}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if err := w.client.DoJSON(ctx, http.MethodPost, w.url, nil, n, nil); err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	return nil
}

// CommandPlayer plays tones with an external audio command such as paplay or
// afplay. Only one tone plays at a time.
type CommandPlayer struct {
	command string
	mu      sync.Mutex
	current *exec.Cmd
}

// NewCommandPlayer fails when the command is not on PATH.
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("audio player %q not available: %w", command, err)
	}
	return &CommandPlayer{command: path}, nil
}

func (p *CommandPlayer) Play(_ context.Context, tone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	// The tone outlives the request that triggered it, so no context here.
	cmd := exec.Command(p.command, tone)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio player: %w", err)
	}
	p.current = cmd
	go cmd.Wait()
	return nil
}

func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *CommandPlayer) stopLocked() error {
	if p.current == nil || p.current.Process == nil {
		return nil
	}
	err := p.current.Process.Kill()
	p.current = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop audio player: %w", err)
	}
	return nil
}
