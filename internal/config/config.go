package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds host paths, service identifiers and download locations
// used by every pipeline. Values omitted from the settings file keep
// their compiled defaults.
type Config struct {
	// DockerDir is the root of the DSM Docker package installation.
	DockerDir string `yaml:"docker_dir"`
	// BinDir is the directory holding the installed docker binaries.
	BinDir string `yaml:"bin_dir"`
	// DaemonConfigPath is the dockerd JSON configuration file.
	DaemonConfigPath string `yaml:"daemon_config"`
	// DataRoot is the value written to the daemon config "data-root" key.
	DataRoot string `yaml:"data_root"`
	// DSMVersionFile is the file describing the installed DSM release.
	DSMVersionFile string `yaml:"dsm_version_file"`
	// SupportedDSMMajor is the DSM major version this tool supports.
	SupportedDSMMajor int `yaml:"supported_dsm_major"`
	// ServiceTool is the DSM service control executable.
	ServiceTool string `yaml:"service_tool"`
	// ServiceName is the Docker package service identifier.
	ServiceName string `yaml:"service_name"`
	// DaemonProcess is the daemon executable name looked up in the process table.
	DaemonProcess string `yaml:"daemon_process"`
	// DockerDownloadBase is the static-binaries index hosting docker-N.N.N.tgz archives.
	DockerDownloadBase string `yaml:"docker_download_base"`
	// ComposeReleaseIndex is the release-tag listing scraped for compose versions.
	ComposeReleaseIndex string `yaml:"compose_release_index"`
	// ComposeDownloadTemplate is the download URL template for the compose binary,
	// with a single %s placeholder for the resolved version.
	ComposeDownloadTemplate string `yaml:"compose_download_template"`
	// WorkDir is the default disposable working directory.
	WorkDir string `yaml:"work_dir"`
	// Timeout bounds exec and network operations.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default settings file location.
	DefaultConfigFilename = "/etc/syno-docker-update.yaml"

	// DefaultTimeout bounds version probes and service control commands.
	DefaultTimeout = 30 * time.Second

	// defaultFilePermissions restricts the persisted settings file.
	defaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServiceRequired is returned when the service tool or name is missing.
	errServiceRequired = errors.New("service tool and service name must be provided")
	// errPathsRequired is returned when mandatory host paths are missing.
	errPathsRequired = errors.New("docker package paths must be provided")
)

// Default returns the compiled defaults for a DSM 6 Docker package host.
func Default() *Config {
	return &Config{
		DockerDir:               "/var/packages/Docker",
		BinDir:                  "/var/packages/Docker/target/usr/bin",
		DaemonConfigPath:        "/var/packages/Docker/etc/dockerd.json",
		DataRoot:                "/var/packages/Docker/target/docker",
		DSMVersionFile:          "/etc.defaults/VERSION",
		SupportedDSMMajor:       6,
		ServiceTool:             "synoservicectl",
		ServiceName:             "pkgctl-Docker",
		DaemonProcess:           "dockerd",
		DockerDownloadBase:      "https://download.docker.com/linux/static/stable/x86_64",
		ComposeReleaseIndex:     "https://github.com/docker/compose/tags",
		ComposeDownloadTemplate: "https://github.com/docker/compose/releases/download/%s/docker-compose-Linux-x86_64",
		WorkDir:                 "/tmp/docker_update",
		Timeout:                 DefaultTimeout,
	}
}

// Load reads configuration from the provided path, layering it over defaults.
// A missing file at the default location is not an error: defaults apply.
func Load(path string) (*Config, error) {
	usingDefaultPath := path == ""
	if usingDefaultPath {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if usingDefaultPath && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, defaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// and normalizes paths so no directory carries a trailing separator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ServiceTool == "" || cfg.ServiceName == "" {
		return errServiceRequired
	}

	if cfg.DockerDir == "" || cfg.BinDir == "" || cfg.DaemonConfigPath == "" {
		return errPathsRequired
	}

	for _, u := range []string{cfg.DockerDownloadBase, cfg.ComposeReleaseIndex} {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid download URL %q: %w", u, err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = Default().WorkDir
	}

	cfg.DockerDir = trimDirSeparator(cfg.DockerDir)
	cfg.BinDir = trimDirSeparator(cfg.BinDir)
	cfg.WorkDir = trimDirSeparator(cfg.WorkDir)
	cfg.DockerDownloadBase = strings.TrimRight(cfg.DockerDownloadBase, "/")

	return nil
}

// DockerBinary returns the path of the installed docker client binary.
func (c *Config) DockerBinary() string {
	return filepath.Join(c.BinDir, "docker")
}

// ComposeBinary returns the path of the installed docker-compose binary.
func (c *Config) ComposeBinary() string {
	return filepath.Join(c.BinDir, "docker-compose")
}

// trimDirSeparator drops trailing path separators without touching the root.
func trimDirSeparator(dir string) string {
	if trimmed := strings.TrimRight(dir, string(os.PathSeparator)); trimmed != "" {
		return trimmed
	}

	return dir
}
