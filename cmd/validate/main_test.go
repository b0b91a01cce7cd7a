package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/tileworld/pkg/state"
)

func writePayload(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPayloadValidator_ValidateFile(t *testing.T) {
	// Setup
	path := writePayload(t, "turn1.json", "```json\n"+`{
		"narrative": "You wash ashore.",
		"currentLocationName": "Shipwreck Cove",
		"isNewLocation": true,
		"parameterChanges": [{"action": "add", "parameter": {"name": "Health", "value": 20}}],
		"mood": "grim"
	}`+"\n```")
	var out bytes.Buffer
	v := NewPayloadValidator(state.Options{GridWidth: 10, GridHeight: 8}, &out)

	// Execute
	err := v.validateFile(path)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, 1, v.gs.Turn)
	assert.Equal(t, "Shipwreck Cove", v.gs.LocationName)
	require.Len(t, v.errors, 1)
	assert.Contains(t, v.errors[0], "unknown key 'mood'")

	var rep map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "Shipwreck Cove", rep["location"])
	assert.Equal(t, []any{"mood"}, rep["unknownKeys"])
}

func TestPayloadValidator_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "   "},
		{"no object", "The narrator shrugs."},
		{"not json", "{ nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePayload(t, "bad.json", tt.body)
			v := NewPayloadValidator(state.Options{}, &bytes.Buffer{})
			assert.Error(t, v.validateFile(path))
			assert.Equal(t, 0, v.gs.Turn)
		})
	}

	v := NewPayloadValidator(state.Options{}, &bytes.Buffer{})
	assert.Error(t, v.validateFile(filepath.Join(t.TempDir(), "missing.json")))
}

func TestPayloadKeys(t *testing.T) {
	keys := payloadKeys()
	assert.Contains(t, keys, "narrative")
	assert.Contains(t, keys, "worldMapWeatherZoneChanges")
	assert.NotContains(t, keys, "-")
}
