package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeRegistry(t, `
locations:
  - id: delhi
    name: Delhi
    latitude: 28.6139
    longitude: 77.2090
  - id: pune
    name: Pune
    latitude: 18.5204
    longitude: 73.8567
sources:
  priority: [cpcb, imd, openmeteo]
  imd_stations:
    delhi: "42182"
`)

	var cfg AppConfig
	require.NoError(t, cfg.loadRegistry(path))

	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, "pune", cfg.Locations[1].ID)
	assert.Equal(t, []string{"cpcb", "imd", "openmeteo"}, cfg.SourcePriority)
	assert.Equal(t, "42182", cfg.IMDStations["delhi"])
}

func TestLoadRegistryMissingFileUsesDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, cfg.loadRegistry(filepath.Join(t.TempDir(), "absent.yaml")))

	assert.NotEmpty(t, cfg.Locations)
	assert.NotEmpty(t, cfg.SourcePriority)
	assert.NotEmpty(t, cfg.IMDStations)
}

func TestLoadRegistryDefaultPriority(t *testing.T) {
	path := writeRegistry(t, `
locations:
  - id: delhi
    name: Delhi
    latitude: 28.6139
    longitude: 77.2090
`)

	var cfg AppConfig
	require.NoError(t, cfg.loadRegistry(path))
	assert.NotEmpty(t, cfg.SourcePriority)
	assert.NotNil(t, cfg.IMDStations)
}

func TestLoadRegistryRejectsEmptyLocations(t *testing.T) {
	path := writeRegistry(t, "sources:\n  priority: [imd]\n")

	var cfg AppConfig
	assert.Error(t, cfg.loadRegistry(path))
}

func TestLoadRegistryRejectsBadCoordinates(t *testing.T) {
	path := writeRegistry(t, `
locations:
  - id: nowhere
    name: Nowhere
    latitude: 123.0
    longitude: 77.0
`)

	var cfg AppConfig
	assert.Error(t, cfg.loadRegistry(path))
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "45s")
	d, err := getenvDuration("TEST_INTERVAL", "15m")
	require.NoError(t, err)
	assert.Equal(t, "45s", d.String())

	d, err = getenvDuration("TEST_INTERVAL_UNSET", "15m")
	require.NoError(t, err)
	assert.Equal(t, "15m0s", d.String())

	t.Setenv("TEST_INTERVAL_BAD", "soon")
	_, err = getenvDuration("TEST_INTERVAL_BAD", "15m")
	assert.Error(t, err)
}
