package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_url":     "https://sync.example",
		"enter_interval": "30m",
		"merge_wait":     int64(2 * time.Second),
		"device_secret":  "s3cret",
	})

	t.Run("loads from -config", func(t *testing.T) {
		cfg := &Config{LogFile: "keep.log"}
		require.NoError(t, parseJson(cfg, []string{"-config", path}))

		assert.Equal(t, "https://sync.example", cfg.ServerURL)
		assert.Equal(t, 30*time.Minute, cfg.EnterInterval)
		assert.Equal(t, 2*time.Second, cfg.MergeWait)
		assert.Equal(t, "s3cret", cfg.DeviceSecret)
		assert.Equal(t, "keep.log", cfg.LogFile)
	})

	t.Run("no flag → no changes", func(t *testing.T) {
		cfg := &Config{ServerURL: "defaults"}
		require.NoError(t, parseJson(cfg, nil))
		assert.Equal(t, "defaults", cfg.ServerURL)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		require.Error(t, parseJson(&Config{}, []string{"-c", bad}))
	})

	t.Run("invalid duration", func(t *testing.T) {
		bad := writeTempJSON(t, dir, "dur.json", map[string]any{"debounce": "later"})
		require.Error(t, parseJson(&Config{}, []string{"-c", bad}))
	})
}
