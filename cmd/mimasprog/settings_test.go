package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), settingsFileName)
	want := settings{Port: "/dev/ttyACM0", File: "/tmp/top.bin", Verify: true}

	require.NoError(t, saveSettings(path, want))
	got, err := loadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	got, err := loadSettings(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, settings{}, got)
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), settingsFileName)
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0644))
	_, err := loadSettings(path)
	assert.Error(t, err)
}
