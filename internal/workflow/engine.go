package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/syno-docker-update/internal/config"
	"github.com/oshokin/syno-docker-update/internal/download"
	"github.com/oshokin/syno-docker-update/internal/logger"
	"github.com/oshokin/syno-docker-update/internal/probe"
	"github.com/oshokin/syno-docker-update/internal/semver"
	"github.com/oshokin/syno-docker-update/internal/sysservice"
)

// VersionProber reads installed versions and resolves targets.
type VersionProber interface {
	Installed(ctx context.Context) (probe.HostProfile, semver.Version, semver.Version)
	ValidateInstalled(ctx context.Context, host probe.HostProfile, docker, compose semver.Version, force bool) error
	Resolve(ctx context.Context, targetDocker, targetCompose string) (semver.Version, semver.Version, error)
}

// ServiceController stops and starts the managed service.
type ServiceController interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
	Status(ctx context.Context) sysservice.Status
}

// Fetcher streams a remote artifact to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// Step is a named unit of work with an applicability predicate. A nil
// Applicable means the step always runs and always counts.
type Step struct {
	Name       string
	Run        func(ctx context.Context, wf *Context) error
	Applicable func(wf *Context) bool
}

func (s Step) applicable(wf *Context) bool {
	return s.Applicable == nil || s.Applicable(wf)
}

// Pipeline is a fixed ordered list of steps. Preflight steps (probing,
// resolution, validation) run unnumbered; the displayed total counts only
// the applicable main steps, computed by filtering after preflight.
type Pipeline struct {
	Name      string
	Preflight []Step
	Steps     []Step
}

// Engine composes the collaborators into command pipelines.
type Engine struct {
	cfg     *config.Config
	prober  VersionProber
	service ServiceController
	fetcher Fetcher
}

// New wires the production collaborators.
func New(cfg *config.Config) *Engine {
	return NewWithCollaborators(cfg, probe.New(cfg), sysservice.New(cfg), download.NewClient())
}

// NewWithCollaborators creates an engine with caller-provided collaborators.
func NewWithCollaborators(cfg *config.Config, prober VersionProber, service ServiceController, fetcher Fetcher) *Engine {
	return &Engine{
		cfg:     cfg,
		prober:  prober,
		service: service,
		fetcher: fetcher,
	}
}

// Run executes the pipeline selected by cmd. Any step failure terminates
// the run immediately, leaving workspace artifacts in place for inspection.
func (e *Engine) Run(ctx context.Context, cmd Command, opts *Options) error {
	ctx = logger.WithName(ctx, cmd.String())

	wf, err := e.newRunContext(cmd, opts)
	if err != nil {
		return err
	}

	if wf.Stage {
		logger.Info(ctx, "Stage mode is on: managed paths will not be modified (disable with --stage=false)")
	}

	pipeline := e.pipeline(cmd)

	return e.execute(ctx, pipeline, wf)
}

// newRunContext validates the invocation and builds the run state.
func (e *Engine) newRunContext(cmd Command, opts *Options) (*Context, error) {
	wf := &Context{
		WorkDir:          e.cfg.WorkDir,
		BackupPath:       opts.BackupPath,
		RequestedDocker:  opts.TargetDocker,
		RequestedCompose: opts.TargetCompose,
		Force:            opts.Force,
		Stage:            opts.Stage,
	}

	switch cmd {
	case CommandDownload, CommandInstall:
		dir, err := normalizeWorkingDir(opts.Path)
		if err != nil {
			return nil, err
		}

		wf.WorkDir = dir
	case CommandRestore:
		if opts.BackupPath == "" {
			return nil, ErrBackupPathRequired
		}

		// The backup's containing directory becomes the workspace.
		wf.WorkDir = trimDirKeepRoot(filepath.Dir(opts.BackupPath))
	case CommandBackup, CommandUpdate:
		// Default disposable workspace from settings.
	}

	return wf, nil
}

// execute runs preflight unnumbered, then the applicable main steps with
// "Step i/total" progress reporting.
func (e *Engine) execute(ctx context.Context, p Pipeline, wf *Context) error {
	for _, step := range p.Preflight {
		logger.Debugf(ctx, "Preflight: %s", step.Name)

		if err := step.Run(ctx, wf); err != nil {
			return err
		}
	}

	total := 0

	for _, step := range p.Steps {
		if step.applicable(wf) {
			total++
		}
	}

	current := 0

	for _, step := range p.Steps {
		if !step.applicable(wf) {
			logger.Debugf(ctx, "Skipping step: %s", step.Name)
			continue
		}

		current++
		logger.Infof(ctx, "Step %d/%d: %s", current, total, step.Name)

		if err := step.Run(ctx, wf); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}

	logger.Infof(ctx, "Done: %s completed successfully", p.Name)

	return nil
}

// normalizeWorkingDir validates a caller-supplied directory and strips any
// trailing separator. A leading dash is rejected so a missing argument is
// not misread as the next flag.
func normalizeWorkingDir(dir string) (string, error) {
	if dir == "" || strings.HasPrefix(dir, "-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkingDir, dir)
	}

	return trimDirKeepRoot(dir), nil
}

// trimDirKeepRoot strips trailing separators without collapsing the
// filesystem root to an empty string.
func trimDirKeepRoot(dir string) string {
	trimmed := strings.TrimRight(dir, string(os.PathSeparator))
	if trimmed == "" {
		return string(os.PathSeparator)
	}

	return trimmed
}
