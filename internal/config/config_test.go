package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, 15*time.Second, cfg.Reminder.Interval)
	assert.Equal(t, "taken", cfg.Reminder.VoiceKeyword)
	assert.Equal(t, "log", cfg.Notify.Type)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pharmtrack.yaml")
	yml := `
addr: ":9000"
storage:
  type: sqlite
  sqlite_path: /var/lib/pharmtrack.db
reminder:
  interval: 30s
  voice_keyword: done
notify:
  type: none
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	env := envOf(map[string]string{
		"PHARMTRACK_STORAGE": "memory",
		"LOG_LEVEL":          "debug",
	})
	cfg, err := Load([]string{"-config", path, "-interval", "5s"}, env)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr, "file overrides default")
	assert.Equal(t, "memory", cfg.Storage.Type, "env overrides file")
	assert.Equal(t, "/var/lib/pharmtrack.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Reminder.Interval, "flag overrides file")
	assert.Equal(t, "done", cfg.Reminder.VoiceKeyword)
	assert.Equal(t, "none", cfg.Notify.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestPortEnv(t *testing.T) {
	cfg, err := Load(nil, envOf(map[string]string{"PORT": "3000"}))
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := [][]string{
		{"-storage", "redis"},
		{"-notifier", "sms"},
		{"-notifier", "webhook"},
		{"-storage", "postgres"},
		{"-interval", "0s"},
		{"-timezone", "Mars/Olympus"},
		{"-tls-cert", "cert.pem"},
	}
	for _, args := range cases {
		_, err := Load(args, envOf(nil))
		assert.Error(t, err, "args %v", args)
	}
}

func TestLoadBadEnvDuration(t *testing.T) {
	_, err := Load(nil, envOf(map[string]string{"PHARMTRACK_INTERVAL": "soon"}))
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Reminder.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}
