package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestNewJSONWithApp(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", App: "pharmtrack", Out: &buf})

	log.Debug("hidden")
	log.WithField("entry_id", "med1").Info("reminder fired")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "reminder fired", line["msg"])
	assert.Equal(t, "pharmtrack", line["app"])
	assert.Equal(t, "med1", line["entry_id"])
	assert.Equal(t, "info", line["level"])
}
