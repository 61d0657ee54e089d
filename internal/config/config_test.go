package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimal = `
regions:
  - name: EU
    url: http://roster.local/eu
  - name: NA
    url: http://roster.local/na
`

func TestLoadDefaultsAndFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	require.Len(t, cfg.Regions, 2)
	assert.Equal(t, "EU", cfg.Regions[0].Name)
	assert.Equal(t, 60*time.Second, cfg.Tracker.Interval)
	assert.Equal(t, 10000, cfg.Store.MaxBacklogEvents)
	assert.Equal(t, "crew", cfg.Discord.Prefix)
	require.Len(t, cfg.Proxy.Restrictions, 1)
	assert.Equal(t, 60, cfg.Proxy.Restrictions[0].Requests)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CREWBOT_TRACKER_INTERVAL", "30s")
	t.Setenv("CREWBOT_STORE_MAX_BACKLOG_EVENTS", "50")
	t.Setenv("CREWBOT_ENRICHMENT_TAGS", "crew, tr ,")
	t.Setenv("CREWBOT_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Tracker.Interval)
	assert.Equal(t, 50, cfg.Store.MaxBacklogEvents)
	assert.Equal(t, []string{"crew", "tr"}, cfg.Enrichment.Tags)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no regions", "log:\n  level: info\n"},
		{"bad url", "regions:\n  - name: EU\n    url: not a url\n"},
		{"duplicate region", "regions:\n  - name: EU\n    url: http://a/\n  - name: EU\n    url: http://b/\n"},
		{"token missing", minimal + "discord:\n  enabled: true\n"},
		{"interval too short", minimal + "tracker:\n  interval: 10ms\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "discord.board_channel", envTransformFunc("CREWBOT_DISCORD_BOARD_CHANNEL"))
	assert.Equal(t, "store.path", envTransformFunc("CREWBOT_STORE_PATH"))
	assert.Equal(t, "", envTransformFunc("CREWBOT_CONFIG"))
}
