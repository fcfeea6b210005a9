package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/syno-docker-update/internal/archive"
	"github.com/oshokin/syno-docker-update/internal/daemonconfig"
	"github.com/oshokin/syno-docker-update/internal/logger"
	"github.com/oshokin/syno-docker-update/internal/probe"
	"github.com/oshokin/syno-docker-update/internal/semver"
	"github.com/oshokin/syno-docker-update/internal/sysservice"
)

const (
	backupTimestampLayout = "20060102_150405"
	binaryFileMode        = os.FileMode(0o755)
	configFileMode        = os.FileMode(0o644)
	dirPermissions        = 0o755
)

// probeInstalled detects host profile and installed versions and validates
// them (force downgrades failures to warnings).
func (e *Engine) probeInstalled(ctx context.Context, wf *Context) error {
	wf.Host, wf.InstalledDocker, wf.InstalledCompose = e.prober.Installed(ctx)

	return e.prober.ValidateInstalled(ctx, wf.Host, wf.InstalledDocker, wf.InstalledCompose, wf.Force)
}

// resolveRemoteTargets determines target versions from the caller-pinned
// strings or the remote listings and validates both artifacts are obtainable.
func (e *Engine) resolveRemoteTargets(ctx context.Context, wf *Context) error {
	docker, compose, err := e.prober.Resolve(ctx, wf.RequestedDocker, wf.RequestedCompose)
	if err != nil {
		return err
	}

	wf.TargetDocker, wf.TargetCompose = docker, compose

	return probe.ValidateAvailable(wf.TargetDocker, wf.TargetCompose)
}

// resolveLocalTargets selects the runtime version from archives already in
// the working directory; the compose version stays unknown because no
// remote check occurs. Both expected artifacts must be present.
func (e *Engine) resolveLocalTargets(ctx context.Context, wf *Context) error {
	docker, err := probe.FromLocalArchives(wf.WorkDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkingDir, err)
	}

	if docker.IsUnknown() {
		return fmt.Errorf("%w in %s", archive.ErrMissingBinaries, wf.WorkDir)
	}

	if !fileExists(filepath.Join(wf.WorkDir, archive.ComposeBinaryName)) {
		return fmt.Errorf("%w in %s", archive.ErrMissingCompose, wf.WorkDir)
	}

	wf.TargetDocker = docker
	wf.TargetCompose = semver.Unknown

	logger.InfoKV(ctx, "Resolved target versions from local archives",
		"docker", wf.TargetDocker.String(), "compose", wf.TargetCompose.String())

	return nil
}

// decideUpdateSkips fails with ErrAlreadyUpToDate when both artifacts are
// current and marks per-artifact skips otherwise. Force proceeds with a
// full update unconditionally.
func (e *Engine) decideUpdateSkips(ctx context.Context, wf *Context) error {
	dockerCurrent := wf.InstalledDocker.Equal(wf.TargetDocker)
	composeCurrent := wf.InstalledCompose.Equal(wf.TargetCompose)

	if wf.Force {
		if dockerCurrent && composeCurrent {
			logger.Warn(ctx, "Both versions are already up to date, proceeding anyway (force)")
		}

		return nil
	}

	if dockerCurrent && composeCurrent {
		return ErrAlreadyUpToDate
	}

	if dockerCurrent {
		wf.SkipDocker = true

		logger.InfoKV(ctx, "Docker is already at the target version, skipping its update",
			"version", wf.InstalledDocker.String())
	}

	if composeCurrent {
		wf.SkipCompose = true

		logger.InfoKV(ctx, "Docker Compose is already at the target version, skipping its update",
			"version", wf.InstalledCompose.String())
	}

	return nil
}

// stopService stops the managed service.
func (e *Engine) stopService(ctx context.Context, _ *Context) error {
	return e.service.Stop(ctx)
}

// startService starts the managed service. A failed restart verification
// is fatal unless force is set: leaving the run dead while the service is
// down is worse than continuing with a warning.
func (e *Engine) startService(ctx context.Context, wf *Context) error {
	err := e.service.Start(ctx)
	if err == nil {
		return nil
	}

	if wf.Force && errors.Is(err, sysservice.ErrRestartFailed) {
		logger.Warnf(ctx, "Ignoring failed restart verification (force): %v", err)
		return nil
	}

	return err
}

// prepareWorkspace creates the working directory and clears any stale
// extracted contents from a previous run. Downloaded archives are kept.
func (e *Engine) prepareWorkspace(ctx context.Context, wf *Context) error {
	if err := os.MkdirAll(wf.WorkDir, dirPermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkingDir, err)
	}

	for _, stale := range []string{archive.VendorDirName, archive.BinaryDirName, archive.ConfigMemberName} {
		if err := os.RemoveAll(filepath.Join(wf.WorkDir, stale)); err != nil {
			return fmt.Errorf("clear stale workspace contents: %w", err)
		}
	}

	logger.InfoKV(ctx, "Prepared working directory", "path", wf.WorkDir)

	return nil
}

// createBackup archives the installed binaries and daemon config. The
// backup path, once resolved, stays fixed for the rest of the run.
func (e *Engine) createBackup(ctx context.Context, wf *Context) error {
	if wf.BackupPath == "" {
		name := fmt.Sprintf("docker_backup_%s.tgz", time.Now().Format(backupTimestampLayout))
		wf.BackupPath = filepath.Join(wf.WorkDir, name)
	}

	if err := archive.CreateBackup(e.cfg.BinDir, e.cfg.DaemonConfigPath, wf.BackupPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Created backup", "path", wf.BackupPath)

	return nil
}

// downloadDocker fetches the runtime archive for the target version.
func (e *Engine) downloadDocker(ctx context.Context, wf *Context) error {
	url := e.cfg.DockerDownloadBase + "/" + dockerArchiveName(wf.TargetDocker)

	return e.fetcher.Fetch(ctx, url, filepath.Join(wf.WorkDir, dockerArchiveName(wf.TargetDocker)))
}

// extractDocker unpacks the runtime archive inside the workspace.
func (e *Engine) extractDocker(_ context.Context, wf *Context) error {
	return archive.ExtractDownloaded(filepath.Join(wf.WorkDir, dockerArchiveName(wf.TargetDocker)), wf.WorkDir)
}

// downloadCompose fetches the standalone compose binary for the target
// version (served via redirect).
func (e *Engine) downloadCompose(ctx context.Context, wf *Context) error {
	url := fmt.Sprintf(e.cfg.ComposeDownloadTemplate, wf.TargetCompose)

	return e.fetcher.Fetch(ctx, url, filepath.Join(wf.WorkDir, archive.ComposeBinaryName))
}

// installBinaries applies the staged binaries onto the installed binary
// directory, or reports the intended action in stage mode.
func (e *Engine) installBinaries(ctx context.Context, wf *Context) error {
	if wf.Stage {
		logger.InfoKV(ctx, "Staged: would install binaries", "target", e.cfg.BinDir)
		return nil
	}

	if !wf.SkipDocker {
		if err := e.installDir(ctx, filepath.Join(wf.WorkDir, archive.VendorDirName)); err != nil {
			return err
		}
	}

	if !wf.SkipCompose {
		composeSource := filepath.Join(wf.WorkDir, archive.ComposeBinaryName)
		if err := applyBinary(composeSource, e.cfg.ComposeBinary()); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Installed binary", "path", e.cfg.ComposeBinary())
	}

	return nil
}

// installDir applies every regular file in srcDir onto the binary directory.
func (e *Engine) installDir(ctx context.Context, srcDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrMissingBinaries, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		target := filepath.Join(e.cfg.BinDir, entry.Name())
		if err = applyBinary(filepath.Join(srcDir, entry.Name()), target); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Installed binary", "path", target)
	}

	return nil
}

// restoreBinaries reinstates the binaries extracted from a backup.
func (e *Engine) restoreBinaries(ctx context.Context, wf *Context) error {
	if wf.Stage {
		logger.InfoKV(ctx, "Staged: would restore binaries", "target", e.cfg.BinDir)
		return nil
	}

	return e.installDir(ctx, filepath.Join(wf.WorkDir, archive.BinaryDirName))
}

// restoreConfig reinstates the daemon config extracted from a backup,
// written wholesale.
func (e *Engine) restoreConfig(ctx context.Context, wf *Context) error {
	if wf.Stage {
		logger.InfoKV(ctx, "Staged: would restore daemon config", "target", e.cfg.DaemonConfigPath)
		return nil
	}

	data, err := os.ReadFile(filepath.Join(wf.WorkDir, archive.ConfigMemberName))
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrMissingConfig, err)
	}

	if err = os.MkdirAll(filepath.Dir(e.cfg.DaemonConfigPath), dirPermissions); err != nil {
		return err
	}

	if err = os.WriteFile(e.cfg.DaemonConfigPath, data, configFileMode); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Restored daemon config", "path", e.cfg.DaemonConfigPath)

	return nil
}

// writeDaemonConfig guarantees a log driver is configured, leaving a
// hand-edited config that already names one untouched.
func (e *Engine) writeDaemonConfig(ctx context.Context, wf *Context) error {
	if wf.Stage {
		logger.InfoKV(ctx, "Staged: would ensure log driver config", "target", e.cfg.DaemonConfigPath)
		return nil
	}

	wrote, err := daemonconfig.EnsureLogDriver(e.cfg.DaemonConfigPath, daemonconfig.Default(e.cfg.DataRoot))
	if err != nil {
		return err
	}

	if wrote {
		logger.InfoKV(ctx, "Wrote daemon config", "path", e.cfg.DaemonConfigPath)
	} else {
		logger.InfoKV(ctx, "Daemon config already declares a log driver, left untouched",
			"path", e.cfg.DaemonConfigPath)
	}

	return nil
}

// extractBackup unpacks the named backup into the workspace and verifies
// its members.
func (e *Engine) extractBackup(ctx context.Context, wf *Context) error {
	if err := archive.ExtractBackup(wf.BackupPath, wf.WorkDir); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Extracted backup", "path", wf.BackupPath)

	return nil
}

// cleanWorkspace removes the disposable working directory. Only the
// settings-owned default is ever deleted; user-supplied directories and
// directories holding a fresh backup are left alone.
func (e *Engine) cleanWorkspace(ctx context.Context, wf *Context) error {
	if wf.WorkDir != e.cfg.WorkDir {
		logger.DebugKV(ctx, "Keeping caller-supplied working directory", "path", wf.WorkDir)
		return nil
	}

	if wf.BackupPath != "" && filepath.Dir(wf.BackupPath) == wf.WorkDir {
		logger.InfoKV(ctx, "Keeping working directory, it holds the backup", "path", wf.WorkDir)
		return nil
	}

	if err := os.RemoveAll(wf.WorkDir); err != nil {
		return fmt.Errorf("clean working directory: %w", err)
	}

	logger.InfoKV(ctx, "Removed working directory", "path", wf.WorkDir)

	return nil
}

// applyBinary writes the staged binary onto targetPath with an atomic
// swap and removes the fallback file on success.
func applyBinary(srcPath, targetPath string) error {
	data, err := os.ReadFile(filepath.Clean(srcPath))
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: binaryFileMode,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("install %s: %w", targetPath, err)
	}

	oldFileName := targetPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}

func dockerArchiveName(v semver.Version) string {
	return fmt.Sprintf("docker-%s.tgz", v)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
