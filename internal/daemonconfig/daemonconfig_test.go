package daemonconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEnsureLogDriverWritesWhenAbsent creates the file and its parents.
func TestEnsureLogDriverWritesWhenAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "dockerd.json")

	wrote, err := EnsureLogDriver(path, Default("/var/packages/Docker/target/docker"))
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	require.Equal(t, "json-file", cfg["log-driver"])
	require.Equal(t, "/var/packages/Docker/target/docker", cfg["data-root"])
	require.Equal(t, "administrators", cfg["group"])
	require.Empty(t, cfg["registry-mirrors"])
}

// TestEnsureLogDriverIdempotent leaves an already-configured file alone:
// content and mtime must be unchanged on the second call.
func TestEnsureLogDriverIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dockerd.json")
	cfg := Default("/data")

	wrote, err := EnsureLogDriver(path, cfg)
	require.NoError(t, err)
	require.True(t, wrote)

	before, err := os.Stat(path)
	require.NoError(t, err)

	original, err := os.ReadFile(path)
	require.NoError(t, err)

	wrote, err = EnsureLogDriver(path, cfg)
	require.NoError(t, err)
	require.False(t, wrote)

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, current)
}

// TestEnsureLogDriverRespectsHandEditedConfig never clobbers a file that
// already mentions the token, even with different driver settings.
func TestEnsureLogDriverRespectsHandEditedConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dockerd.json")
	handEdited := `{"log-driver": "syslog", "data-root": "/custom"}`
	require.NoError(t, os.WriteFile(path, []byte(handEdited), 0o644))

	wrote, err := EnsureLogDriver(path, Default("/data"))
	require.NoError(t, err)
	require.False(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, handEdited, string(data))
}

// TestEnsureLogDriverRewritesWholesale replaces a config lacking the token
// entirely rather than merging fields.
func TestEnsureLogDriverRewritesWholesale(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dockerd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage-driver": "overlay2"}`), 0o644))

	wrote, err := EnsureLogDriver(path, Default("/data"))
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "storage-driver")
	require.Contains(t, string(data), `"log-driver"`)
}
