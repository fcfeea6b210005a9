package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/syno-docker-update/internal/config"
	"github.com/oshokin/syno-docker-update/internal/semver"
)

// testConfig returns settings pointing at throwaway host paths.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.BinDir = t.TempDir()
	cfg.DSMVersionFile = filepath.Join(t.TempDir(), "VERSION")

	return cfg
}

// writeScript installs an executable shell script that echoes output.
func writeScript(t *testing.T, path, output string) {
	t.Helper()

	script := "#!/bin/sh\necho \"" + output + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

// TestInstalled detects DSM profile and binary versions from local fakes.
func TestInstalled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	dsm := "majorversion=\"6\"\nminorversion=\"2\"\nbuildnumber=\"25426\"\n"
	require.NoError(t, os.WriteFile(cfg.DSMVersionFile, []byte(dsm), 0o644))

	writeScript(t, cfg.DockerBinary(), "Docker version 18.09.1, build 4c52b90")
	writeScript(t, cfg.ComposeBinary(), "docker-compose version 1.23.2, build 1110ad01")

	host, docker, compose := New(cfg).Installed(context.Background())

	require.True(t, host.Known())
	require.Equal(t, 6, host.MajorVersion)
	require.Equal(t, "25426", host.BuildNumber)
	require.Equal(t, "18.09.1", docker.String())
	require.Equal(t, "1.23.2", compose.String())
}

// TestInstalledUndetectable yields Unknown fields rather than errors.
func TestInstalledUndetectable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	host, docker, compose := New(cfg).Installed(context.Background())

	require.False(t, host.Known())
	require.True(t, docker.IsUnknown())
	require.True(t, compose.IsUnknown())
}

// TestValidateInstalled covers the supported-host and missing-binary failures
// and their force bypass.
func TestValidateInstalled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	prober := New(cfg)
	ctx := context.Background()

	supported := HostProfile{MajorVersion: 6, BuildNumber: "25426"}
	unsupported := HostProfile{MajorVersion: 7}
	docker := semver.MustParse("18.09.1")
	compose := semver.MustParse("1.23.2")

	require.NoError(t, prober.ValidateInstalled(ctx, supported, docker, compose, false))

	err := prober.ValidateInstalled(ctx, unsupported, docker, compose, false)
	require.ErrorIs(t, err, ErrUnsupportedHost)
	require.NoError(t, prober.ValidateInstalled(ctx, unsupported, docker, compose, true))

	err = prober.ValidateInstalled(ctx, supported, semver.Unknown, compose, false)
	require.ErrorIs(t, err, ErrMissingRuntime)

	err = prober.ValidateInstalled(ctx, supported, docker, semver.Unknown, false)
	require.ErrorIs(t, err, ErrMissingCompose)
	require.NoError(t, prober.ValidateInstalled(ctx, supported, semver.Unknown, semver.Unknown, true))
}

// TestResolveRemote scrapes the binary index and tag listing, picking the
// numerically highest stable versions.
func TestResolveRemote(t *testing.T) {
	t.Parallel()

	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>
			<a href="docker-1.9.10.tgz">docker-1.9.10.tgz</a>
			<a href="docker-1.10.0.tgz">docker-1.10.0.tgz</a>
			<a href="docker-rootless-extras-1.11.0.tgz">docker-rootless-extras-1.11.0.tgz</a>
		</html>`))
	}))
	defer index.Close()

	tags := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>
			<a href="/docker/compose/releases/tag/1.24.0">1.24.0</a>
			<a href="/docker/compose/releases/tag/1.25.0-rc1">1.25.0-rc1</a>
			<a href="/docker/compose/releases/tag/2.0.0b1">2.0.0b1</a>
			<a href="/docker/compose/releases/tag/1.23.2">1.23.2</a>
		</html>`))
	}))
	defer tags.Close()

	cfg := testConfig(t)
	cfg.DockerDownloadBase = index.URL
	cfg.ComposeReleaseIndex = tags.URL

	docker, compose, err := New(cfg).Resolve(context.Background(), "", "")
	require.NoError(t, err)
	require.Equal(t, "1.10.0", docker.String())
	require.Equal(t, "1.24.0", compose.String())
}

// TestResolvePassThrough keeps explicitly supplied targets untouched.
func TestResolvePassThrough(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	docker, compose, err := New(cfg).Resolve(context.Background(), "18.09.1", "1.23.2")
	require.NoError(t, err)
	require.Equal(t, "18.09.1", docker.String())
	require.Equal(t, "1.23.2", compose.String())

	_, _, err = New(cfg).Resolve(context.Background(), "latest", "")
	require.ErrorIs(t, err, semver.ErrInvalidFormat)
}

// TestValidateAvailable maps unresolved artifacts to their errors.
func TestValidateAvailable(t *testing.T) {
	t.Parallel()

	known := semver.MustParse("1.0.0")

	require.NoError(t, ValidateAvailable(known, known))
	require.ErrorIs(t, ValidateAvailable(semver.Unknown, known), ErrRuntimeUnavailable)
	require.ErrorIs(t, ValidateAvailable(known, semver.Unknown), ErrComposeUnavailable)
}

// TestFromLocalArchives selects the highest version among side-loaded archives.
func TestFromLocalArchives(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"docker-1.9.10.tgz", "docker-1.10.0.tgz", "docker-compose", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	v, err := FromLocalArchives(dir)
	require.NoError(t, err)
	require.Equal(t, "1.10.0", v.String())

	empty, err := FromLocalArchives(t.TempDir())
	require.NoError(t, err)
	require.True(t, empty.IsUnknown())

	_, err = FromLocalArchives(filepath.Join(dir, "absent"))
	require.Error(t, err)
}
