package workflow

import (
	"errors"

	"github.com/oshokin/syno-docker-update/internal/probe"
	"github.com/oshokin/syno-docker-update/internal/semver"
)

// Command selects one pipeline. It is chosen once during argument parsing
// and mapped to a fixed step list; there is no string-based dispatch.
type Command int

const (
	// CommandBackup archives the installed binaries and daemon config.
	CommandBackup Command = iota
	// CommandDownload fetches target artifacts into a directory.
	CommandDownload
	// CommandInstall installs artifacts side-loaded into a directory.
	CommandInstall
	// CommandRestore reinstates a previously created backup.
	CommandRestore
	// CommandUpdate performs the full backup-download-install cycle.
	CommandUpdate
)

// String names the command for logs.
func (c Command) String() string {
	switch c {
	case CommandBackup:
		return "backup"
	case CommandDownload:
		return "download"
	case CommandInstall:
		return "install"
	case CommandRestore:
		return "restore"
	case CommandUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Options are the caller-supplied inputs for one invocation.
type Options struct {
	// BackupPath names the backup archive to create or restore from.
	BackupPath string
	// TargetDocker pins the docker version instead of remote resolution.
	TargetDocker string
	// TargetCompose pins the compose version instead of remote resolution.
	TargetCompose string
	// Path is the positional working directory for download and install.
	Path string
	// Force bypasses version and compatibility validation and downgrades
	// a failed service restart to a warning.
	Force bool
	// Stage reports intended mutations of managed paths without
	// performing them. It is the default; disabling it must be explicit.
	Stage bool
}

// Context is the mutable state shared by the steps of one run. It is
// created once per invocation and owned exclusively by the engine.
type Context struct {
	// Host is the detected DSM profile.
	Host probe.HostProfile
	// InstalledDocker and InstalledCompose are the detected local versions.
	InstalledDocker  semver.Version
	InstalledCompose semver.Version
	// RequestedDocker and RequestedCompose are caller-pinned version
	// strings; empty means "resolve remotely".
	RequestedDocker  string
	RequestedCompose string
	// TargetDocker and TargetCompose are the resolved target versions.
	TargetDocker  semver.Version
	TargetCompose semver.Version
	// SkipDocker and SkipCompose mark artifacts already at target whose
	// update steps become no-ops.
	SkipDocker  bool
	SkipCompose bool
	// WorkDir is the flat disposable directory holding downloaded and
	// extracted artifacts. Never stores a trailing separator.
	WorkDir string
	// BackupPath, once resolved, is immutable for the run.
	BackupPath string
	// Force and Stage mirror the invocation options.
	Force bool
	Stage bool
}

var (
	// ErrAlreadyUpToDate is returned by update when both artifacts already
	// match their resolved targets.
	ErrAlreadyUpToDate = errors.New("both docker and docker-compose are already up to date")
	// ErrBackupPathRequired is returned by restore when no backup was named.
	ErrBackupPathRequired = errors.New("restore requires a backup file (--backup)")
	// ErrInvalidWorkingDir is returned when the supplied directory is unusable.
	ErrInvalidWorkingDir = errors.New("invalid working directory")
)
