package sysservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/syno-docker-update/internal/config"
)

// TestParseStatus maps tool output variants to statuses.
func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"pkgctl-Docker is running":       StatusRunning,
		"Package [Docker] status: start": StatusUnknown,
		"pkgctl-Docker is stopped":       StatusStopped,
		"pkgctl-Docker is not running":   StatusStopped,
		"stop pkgctl-Docker":             StatusStopped,
		"something else entirely":        StatusUnknown,
		"":                               StatusUnknown,
	}
	for output, want := range cases {
		require.Equal(t, want, parseStatus(output), output)
	}
}

// fakeTool installs a stand-in service tool that reports the given status.
func fakeTool(t *testing.T, statusReply string, failActions ...string) *config.Config {
	t.Helper()

	fail := ""
	for _, action := range failActions {
		fail += "  " + action + ") exit 1 ;;\n"
	}

	script := "#!/bin/sh\ncase \"$1\" in\n" + fail +
		"  --status) echo \"" + statusReply + "\" ;;\nesac\nexit 0\n"

	dir := t.TempDir()
	tool := filepath.Join(dir, "synoservicectl")
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	cfg := config.Default()
	cfg.ServiceTool = tool
	cfg.DaemonProcess = "definitely-not-a-real-process"

	return cfg
}

// TestStartStopAgainstFakeTool exercises the command and status round trip.
func TestStartStopAgainstFakeTool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctl := New(fakeTool(t, "pkgctl-Docker is running"))
	require.Equal(t, StatusRunning, ctl.Status(ctx))
	require.NoError(t, ctl.Stop(ctx))
	require.NoError(t, ctl.Start(ctx))

	// Start succeeds but the service never comes up.
	ctl = New(fakeTool(t, "pkgctl-Docker is stopped"))
	require.ErrorIs(t, ctl.Start(ctx), ErrRestartFailed)

	// The stop command itself fails.
	ctl = New(fakeTool(t, "pkgctl-Docker is running", "--stop"))
	require.Error(t, ctl.Stop(ctx))
}

// TestStatusToolMissing reports unknown when the tool cannot run.
func TestStatusToolMissing(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ServiceTool = filepath.Join(t.TempDir(), "absent-tool")

	require.Equal(t, StatusUnknown, New(cfg).Status(context.Background()))
}
