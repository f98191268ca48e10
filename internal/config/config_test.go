package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const validConfig = `
server:
  port: 4000
redis:
  url: redis://127.0.0.1:6379
feed:
  static_url: https://example.com/gtfs.zip
  trip_updates_url: https://example.com/TripUpdate.pb
  vehicle_positions_url: https://example.com/VehiclePosition.pb
  service_alerts_url: https://example.com/Alert.pb
  timezone: America/New_York
hub_destinations:
  - PULSE
stop_name_overrides:
  "422": "PTC (Outbound)"
  "820": "PTC (Inbound)"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "America/New_York", cfg.Feed.Timezone)
	assert.Equal(t, []string{"PULSE"}, cfg.HubDestinations)
	assert.Equal(t, "PTC (Outbound)", cfg.StopNameOverrides["422"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 600, cfg.Refresh.StaticIntervalSeconds)
	assert.Equal(t, 1, cfg.Refresh.RealtimeIntervalSeconds)
	assert.Equal(t, 3600, cfg.Refresh.AlertsIntervalSeconds)
	assert.Equal(t, "03:30:00", cfg.Refresh.CleanupTimeOfDay)
	assert.Equal(t, 3, cfg.Refresh.WindowDays)
	assert.Equal(t, 3, cfg.Refresh.RetentionDays)
}

func TestLoadMissingRequiredFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  port: 4000
feed:
  static_url: https://example.com/gtfs.zip
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
}

func TestLoadRejectsBadURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
feed:
  static_url: not-a-url
  trip_updates_url: https://example.com/TripUpdate.pb
  vehicle_positions_url: https://example.com/VehiclePosition.pb
  timezone: America/New_York
`))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://10.0.0.5:6379")
	t.Setenv("PORT", "9999")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "redis://10.0.0.5:6379", cfg.Redis.URL)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
