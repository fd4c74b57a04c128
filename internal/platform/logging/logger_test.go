package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, ServiceName: "svc", Environment: "test", JSONFormat: true, Output: &buf})

	log.With(F("session_id", "ses_1")).Info("checklist updated", F("done", 3), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "checklist updated", entry["message"])
	assert.Equal(t, "svc", entry["service_name"])
	assert.Equal(t, "ses_1", entry["session_id"])
	assert.Equal(t, float64(3), entry["done"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, JSONFormat: true, Output: &buf})
	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}
