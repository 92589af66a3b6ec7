package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hangar.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
LibraryPath = "/library"
DatabasePath = "/library/db"
ApiKey = "secret"
TickIntervalMs = 500
StartPaused = true

[InstallLocations]
library = "/library/games"
external = "/mnt/games"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/library", cfg.LibraryPath)
	assert.Equal(t, "secret", cfg.ApiKey)
	assert.Equal(t, 500, cfg.TickIntervalMs)
	assert.True(t, cfg.StartPaused)
	assert.Equal(t, "/library/games", cfg.InstallLocations["library"])
	assert.Equal(t, "/mnt/games", cfg.InstallLocations["external"])
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
LibraryPath = "/library"
DatabasePath = "/library/db"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.TickIntervalMs)
	assert.Equal(t, 60, cfg.UpdateCheckIntervalMin)
	assert.Equal(t, 60, cfg.ApiClientTimeoutSec)
	assert.False(t, cfg.StartPaused)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, `LibraryPath = [broken`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
