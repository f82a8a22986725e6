package macropad

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

const validConfigYAML = `
sonos_api_host: 192.168.1.50
sonos_api_port: 5005
primary_room: Living Room
secondary_rooms:
  - Kitchen
  - Bedroom
favorite_playlist: Morning Jazz
macropad_device_name: sonos-macropad
primary_single_step: 3
primary_max_volume: 50
primary_min_grouping_volume: 10
secondary_step: 2
secondary_max_volume: 40
secondary_min_grouping_volume: 5
`

// loadConfigFromYAML writes the YAML into a temp working directory and loads
// it from there, since the config is always read from the current directory.
func loadConfigFromYAML(t *testing.T, yaml string) (*CanonicalConfig, error) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(previous) })

	cc, err := NewConfig(testLogger(), nopNotifier{})
	require.NoError(t, err)

	return cc, cc.Load()
}

func TestConfigLoadValid(t *testing.T) {
	cc, err := loadConfigFromYAML(t, validConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", cc.Sonos.APIHost)
	assert.Equal(t, 5005, cc.Sonos.APIPort)
	assert.Equal(t, "Living Room", cc.Sonos.PrimaryRoom)
	assert.Equal(t, []string{"Kitchen", "Bedroom"}, cc.Sonos.SecondaryRooms)
	assert.Equal(t, "Morning Jazz", cc.Sonos.FavoritePlaylist)
	assert.Equal(t, "sonos-macropad", cc.Macropad.DeviceName)

	assert.Equal(t, volumeLimits{
		PrimaryStep:          3,
		PrimaryMax:           50,
		PrimaryMinGrouping:   10,
		SecondaryStep:        2,
		SecondaryMax:         40,
		SecondaryMinGrouping: 5,
	}, cc.Volume)
}

func TestConfigDefaults(t *testing.T) {
	cc, err := loadConfigFromYAML(t, `
primary_room: Living Room
macropad_device_name: sonos-macropad
`)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cc.Sonos.APIHost)
	assert.Equal(t, 5005, cc.Sonos.APIPort)
	assert.Empty(t, cc.Sonos.SecondaryRooms)
	assert.Equal(t, 3, cc.Volume.PrimaryStep)
	assert.Equal(t, 60, cc.Volume.PrimaryMax)
}

func TestConfigMissingFile(t *testing.T) {
	dir := t.TempDir()

	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(previous) })

	cc, err := NewConfig(testLogger(), nopNotifier{})
	require.NoError(t, err)
	assert.Error(t, cc.Load())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid host",
			yaml: `
sonos_api_host: "not a host!"
primary_room: Living Room
macropad_device_name: sonos-macropad
`,
		},
		{
			name: "port out of range",
			yaml: `
sonos_api_port: 70000
primary_room: Living Room
macropad_device_name: sonos-macropad
`,
		},
		{
			name: "missing primary room",
			yaml: `
macropad_device_name: sonos-macropad
`,
		},
		{
			name: "primary room listed as secondary",
			yaml: `
primary_room: Living Room
secondary_rooms: [Kitchen, Living Room]
macropad_device_name: sonos-macropad
`,
		},
		{
			name: "duplicate secondary rooms",
			yaml: `
primary_room: Living Room
secondary_rooms: [Kitchen, Kitchen]
macropad_device_name: sonos-macropad
`,
		},
		{
			name: "missing device name",
			yaml: `
primary_room: Living Room
`,
		},
		{
			name: "primary step out of range",
			yaml: `
primary_room: Living Room
macropad_device_name: sonos-macropad
primary_single_step: 11
`,
		},
		{
			name: "primary min grouping above primary max",
			yaml: `
primary_room: Living Room
macropad_device_name: sonos-macropad
primary_max_volume: 30
primary_min_grouping_volume: 35
`,
		},
		{
			name: "secondary max above primary max",
			yaml: `
primary_room: Living Room
macropad_device_name: sonos-macropad
primary_max_volume: 30
secondary_max_volume: 50
`,
		},
		{
			name: "secondary step out of range",
			yaml: `
primary_room: Living Room
macropad_device_name: sonos-macropad
secondary_step: 6
`,
		},
		{
			name: "secondary min grouping above secondary max",
			yaml: `
primary_room: Living Room
macropad_device_name: sonos-macropad
secondary_max_volume: 10
secondary_min_grouping_volume: 15
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfigFromYAML(t, tt.yaml)
			assert.Error(t, err)
		})
	}
}

func TestConfigHostnameAccepted(t *testing.T) {
	cc, err := loadConfigFromYAML(t, `
sonos_api_host: sonos-bridge.local
primary_room: Living Room
macropad_device_name: sonos-macropad
`)
	require.NoError(t, err)
	assert.Equal(t, "sonos-bridge.local", cc.Sonos.APIHost)
}
