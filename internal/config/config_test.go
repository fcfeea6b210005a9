package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields, URL validation and path normalization.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing service tool.
	cfg := new(Config)

	err := Validate(cfg)
	require.Error(t, err)

	// Bad download URL.
	cfg = Default()
	cfg.DockerDownloadBase = "not a url"

	err = Validate(cfg)
	require.Error(t, err)

	// Trailing separators are normalized away.
	cfg = Default()
	cfg.BinDir = "/var/packages/Docker/target/usr/bin/"
	cfg.WorkDir = "/tmp/docker_update///"

	require.NoError(t, Validate(cfg))
	require.Equal(t, "/var/packages/Docker/target/usr/bin", cfg.BinDir)
	require.Equal(t, "/tmp/docker_update", cfg.WorkDir)

	// Zero timeout falls back to the default.
	cfg = Default()
	cfg.Timeout = 0

	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultTimeout, cfg.Timeout)
}

// TestLoadMissingDefaultFile ensures defaults apply when no settings file exists.
func TestLoadMissingDefaultFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestLoadMissingExplicitFile ensures an explicitly named missing file is an error.
func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly,
// with unnamed fields keeping their defaults.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := Default()
	cfg.ServiceName = "pkgctl-Docker-Test"
	cfg.Timeout = 10 * time.Second

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ServiceName, loaded.ServiceName)
	require.Equal(t, cfg.Timeout, loaded.Timeout)
	require.Equal(t, cfg.BinDir, loaded.BinDir)
}

// TestBinaryPaths checks derived binary locations.
func TestBinaryPaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Equal(t, cfg.BinDir+"/docker", cfg.DockerBinary())
	require.Equal(t, cfg.BinDir+"/docker-compose", cfg.ComposeBinary())
}
