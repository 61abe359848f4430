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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[data]
root = "`+dir+`/data"

[station]
latitude = 47.37
longitude = 8.54
altitude = 450.0

[schedules]
approval_mode = "auto"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir+"/data", cfg.Data.Root)
	assert.Equal(t, 47.37, cfg.Station.Latitude)
	assert.Equal(t, "auto", cfg.Schedules.ApprovalMode)
	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Bind)
	assert.Equal(t, 10.0, cfg.Predict.MinElevation)

	// Load creates the data directories.
	_, err = os.Stat(cfg.Data.Root)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.Data.TLEDir)
	assert.NoError(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		"[station]\nlatitude = 120.0\n",
		"[station]\nlongitude = -300.0\n",
		"[schedules]\napproval_mode = \"maybe\"\n",
		"[predict]\nmin_elevation = 95.0\n",
		"[predict]\nlookahead_hours = 0\n",
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c))
		assert.Error(t, err, c)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, validate(Default()))
}
