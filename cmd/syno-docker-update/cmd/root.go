package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/syno-docker-update/internal/config"
	"github.com/oshokin/syno-docker-update/internal/logger"
	"github.com/oshokin/syno-docker-update/internal/version"
	"github.com/oshokin/syno-docker-update/internal/workflow"
)

var (
	errInvalidLogLevel = errors.New("unknown log level")
	errRootRequired    = errors.New("root privileges are required to modify the installed package")
	errInvalidPath     = errors.New("path must not be empty or start with a dash")
)

var (
	// configPath to the settings YAML file.
	configPath string
	// logLevel name passed to the logger.
	logLevel string
	// backupPath names the archive to create or restore from.
	backupPath string
	// targetDocker pins the Docker version instead of remote resolution.
	targetDocker string
	// targetCompose pins the Docker Compose version instead of remote resolution.
	targetCompose string
	// force bypasses host and version validation.
	force bool
	// stage logs intended changes without touching managed paths.
	stage bool

	// cfg is loaded once in the persistent pre-run hook.
	cfg *config.Config

	// rootCmd represents the base command for the DSM Docker package updater.
	rootCmd = &cobra.Command{
		Use:   "syno-docker-update",
		Short: "Update the Docker package on a Synology DSM host.",
		Long: `Manages the lifecycle of the host-vendored Docker package on Synology DSM:
backs up, downloads, installs, restores and updates the Docker binaries,
docker-compose and the daemon configuration.

Stage mode is enabled by default: intended changes are logged but managed
paths are never modified. Pass --stage=false to apply changes for real.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errInvalidLogLevel, logLevel)
			}

			logger.SetLevel(level)

			var err error

			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			return config.Validate(cfg)
		},
	}

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Archive the installed Docker binaries and daemon configuration",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			path, err := backupPathArg(cobraCmd.Flags().Changed("backup"), backupPath)
			if err != nil {
				return err
			}

			return runCommand(cobraCmd, workflow.CommandBackup, &workflow.Options{
				BackupPath: path,
				Force:      force,
				Stage:      stage,
			})
		},
	}

	downloadCmd = &cobra.Command{
		Use:   "download <directory>",
		Short: "Fetch the target Docker and docker-compose artifacts into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			if err := validatePath(args[0]); err != nil {
				return err
			}

			return runCommand(cobraCmd, workflow.CommandDownload, &workflow.Options{
				Path:          args[0],
				TargetDocker:  targetDocker,
				TargetCompose: targetCompose,
				Force:         force,
				Stage:         stage,
			})
		},
	}

	installCmd = &cobra.Command{
		Use:   "install <directory>",
		Short: "Install Docker from archives already present in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			if err := validatePath(args[0]); err != nil {
				return err
			}

			return runCommand(cobraCmd, workflow.CommandInstall, &workflow.Options{
				Path:  args[0],
				Force: force,
				Stage: stage,
			})
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore Docker binaries and daemon configuration from a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			if err := validatePath(backupPath); err != nil {
				return err
			}

			return runCommand(cobraCmd, workflow.CommandRestore, &workflow.Options{
				BackupPath: backupPath,
				Force:      force,
				Stage:      stage,
			})
		},
	}

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update Docker and docker-compose to the latest (or pinned) versions",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return runCommand(cobraCmd, workflow.CommandUpdate, &workflow.Options{
				TargetDocker:  targetDocker,
				TargetCompose: targetCompose,
				Force:         force,
				Stage:         stage,
			})
		},
	}
)

// Execute runs the syno-docker-update CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename,
		"path to settings file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false,
		"bypass host and version validation")
	rootCmd.PersistentFlags().BoolVar(&stage, "stage", true,
		"log intended changes without modifying managed paths")

	backupCmd.Flags().StringVarP(&backupPath, "backup", "b", "",
		"backup archive path (default is generated in the working directory)")
	restoreCmd.Flags().StringVarP(&backupPath, "backup", "b", "",
		"backup archive to restore from (required)")

	for _, command := range []*cobra.Command{downloadCmd, updateCmd} {
		command.Flags().StringVar(&targetDocker, "docker", "",
			"pin the Docker version instead of resolving the latest")
		command.Flags().StringVar(&targetCompose, "compose", "",
			"pin the docker-compose version instead of resolving the latest")
	}

	rootCmd.AddCommand(backupCmd, downloadCmd, installCmd, restoreCmd, updateCmd)
}

// runCommand wires the engine and executes the selected pipeline under a
// signal-aware context. Argument validation happened before this point, so
// later failures print a diagnostic without the usage text.
func runCommand(cobraCmd *cobra.Command, command workflow.Command, opts *workflow.Options) error {
	cobraCmd.SilenceUsage = true

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if !opts.Stage {
		if err := requireRoot(); err != nil {
			return err
		}
	}

	err := workflow.New(cfg).Run(ctx, command, opts)
	if err != nil {
		logger.ErrorKV(ctx, "Command failed", "command", command.String(), "error", err)
	}

	return err
}

// backupPathArg resolves the backup flag for the backup command. An unset
// flag means a generated name; a flag passed explicitly must hold a usable
// path, so `--backup ""` is an error rather than silent auto-naming.
func backupPathArg(changed bool, value string) (string, error) {
	if !changed {
		return "", nil
	}

	if err := validatePath(value); err != nil {
		return "", err
	}

	return value, nil
}

// validatePath rejects empty and dash-prefixed values so a missing
// argument is not misread as the next flag.
func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "-") {
		return fmt.Errorf("%w: %q", errInvalidPath, path)
	}

	return nil
}

// requireRoot checks the effective UID, the managed paths are writable by
// root only.
func requireRoot() error {
	if os.Geteuid() != 0 {
		return errRootRequired
	}

	return nil
}
