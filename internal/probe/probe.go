// Package probe reads installed and available versions of the managed
// runtime, the compose tool and the host DSM release. Detection never
// fails hard: undetectable fields come back as semver.Unknown and the
// Validate functions decide whether that is fatal.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/oshokin/syno-docker-update/internal/config"
	"github.com/oshokin/syno-docker-update/internal/logger"
	"github.com/oshokin/syno-docker-update/internal/semver"
)

var (
	// ErrUnsupportedHost is returned when the DSM major version is not supported.
	ErrUnsupportedHost = errors.New("unsupported DSM version")
	// ErrMissingRuntime is returned when no installed docker version is detectable.
	ErrMissingRuntime = errors.New("docker is not installed or not detectable")
	// ErrMissingCompose is returned when no installed compose version is detectable.
	ErrMissingCompose = errors.New("docker-compose is not installed or not detectable")
	// ErrRuntimeUnavailable is returned when no target docker version could be resolved.
	ErrRuntimeUnavailable = errors.New("no available docker version found")
	// ErrComposeUnavailable is returned when no target compose version could be resolved.
	ErrComposeUnavailable = errors.New("no available docker-compose version found")
)

var (
	// versionToken extracts the first N.N.N substring from free-text command output.
	versionToken = regexp.MustCompile(`\d+\.\d+\.\d+`)
	// archiveName matches vendor runtime archives in the remote index and local dirs.
	archiveName = regexp.MustCompile(`docker-(\d+\.\d+\.\d+(?:-ce)?)\.tgz`)
	// releaseTag matches version-shaped tokens in a release-tag listing; a captured
	// suffix marks a non-stable tag to be ignored. Pre-release markers appear both
	// dashed (1.25.0-rc1) and bare (2.0.0b1), so any letter glued to the version
	// counts as a suffix too.
	releaseTag = regexp.MustCompile(`v?(\d+\.\d+\.\d+)(-[0-9A-Za-z.]+|[A-Za-z][0-9A-Za-z.]*)?`)
	// dsmMajorVersion and dsmBuildNumber pull fields from the DSM VERSION file.
	dsmMajorVersion = regexp.MustCompile(`majorversion="?(\d+)"?`)
	dsmBuildNumber  = regexp.MustCompile(`buildnumber="?(\d+)"?`)
)

// HostProfile describes the detected DSM release.
type HostProfile struct {
	// MajorVersion is the DSM major version, 0 when undetectable.
	MajorVersion int
	// BuildNumber is the DSM build, empty when undetectable.
	BuildNumber string
}

// Known reports whether the host release was detected at all.
func (h HostProfile) Known() bool {
	return h.MajorVersion > 0
}

// Supported reports whether the host major version matches the supported one.
func (h HostProfile) Supported(supportedMajor int) bool {
	return h.MajorVersion == supportedMajor
}

// Prober detects versions from local files/commands and remote listings.
type Prober struct {
	cfg        *config.Config
	httpClient *http.Client
}

// New creates a prober backed by the default HTTP client.
func New(cfg *config.Config) *Prober {
	return NewWithHTTP(cfg, http.DefaultClient)
}

// NewWithHTTP creates a prober with a caller-provided HTTP client.
func NewWithHTTP(cfg *config.Config, httpClient *http.Client) *Prober {
	return &Prober{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

// Installed reads the host profile and the installed docker and compose
// versions. Each field is Unknown (or a zero profile) if undetectable.
func (p *Prober) Installed(ctx context.Context) (HostProfile, semver.Version, semver.Version) {
	host := p.hostProfile(ctx)
	docker := p.commandVersion(ctx, p.cfg.DockerBinary(), "-v")
	compose := p.commandVersion(ctx, p.cfg.ComposeBinary(), "-v")

	logger.InfoKV(ctx, "Detected installed versions",
		"dsm_major", host.MajorVersion,
		"dsm_build", host.BuildNumber,
		"docker", docker.String(),
		"compose", compose.String())

	return host, docker, compose
}

// ValidateInstalled fails when the host is unsupported or either installed
// version is undetectable. Force downgrades every failure to a warning.
func (p *Prober) ValidateInstalled(
	ctx context.Context,
	host HostProfile,
	docker, compose semver.Version,
	force bool,
) error {
	var err error

	switch {
	case !host.Supported(p.cfg.SupportedDSMMajor):
		err = fmt.Errorf("%w: detected major version %d, supported %d",
			ErrUnsupportedHost, host.MajorVersion, p.cfg.SupportedDSMMajor)
	case docker.IsUnknown():
		err = fmt.Errorf("%w: %s", ErrMissingRuntime, p.cfg.DockerBinary())
	case compose.IsUnknown():
		err = fmt.Errorf("%w: %s", ErrMissingCompose, p.cfg.ComposeBinary())
	default:
		return nil
	}

	if force {
		logger.Warnf(ctx, "Ignoring failed host validation (force): %v", err)
		return nil
	}

	return err
}

// Resolve determines the target docker and compose versions. Supplied
// fields pass through unchanged after format validation; empty fields are
// resolved against the remote binary index and release-tag listing.
func (p *Prober) Resolve(ctx context.Context, targetDocker, targetCompose string) (semver.Version, semver.Version, error) {
	docker, err := p.resolveDocker(ctx, targetDocker)
	if err != nil {
		return semver.Unknown, semver.Unknown, err
	}

	compose, err := p.resolveCompose(ctx, targetCompose)
	if err != nil {
		return semver.Unknown, semver.Unknown, err
	}

	logger.InfoKV(ctx, "Resolved target versions",
		"docker", docker.String(), "compose", compose.String())

	return docker, compose, nil
}

// ValidateAvailable fails when resolution yielded nothing for an artifact.
func ValidateAvailable(docker, compose semver.Version) error {
	if docker.IsUnknown() {
		return ErrRuntimeUnavailable
	}

	if compose.IsUnknown() {
		return ErrComposeUnavailable
	}

	return nil
}

// FromLocalArchives selects the highest runtime version among the vendor
// archives present in dir. Used when artifacts were side-loaded rather
// than fetched. Unknown is returned when dir holds no matching archive.
func FromLocalArchives(dir string) (semver.Version, error) {
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return semver.Unknown, fmt.Errorf("read archive directory: %w", err)
	}

	var candidates []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if matches := archiveName.FindStringSubmatch(entry.Name()); matches != nil {
			candidates = append(candidates, matches[1])
		}
	}

	return semver.Highest(candidates), nil
}

// hostProfile parses the DSM VERSION file.
func (p *Prober) hostProfile(ctx context.Context) HostProfile {
	contents, err := os.ReadFile(filepath.Clean(p.cfg.DSMVersionFile))
	if err != nil {
		logger.Debugf(ctx, "Unable to read DSM version file %s: %v", p.cfg.DSMVersionFile, err)
		return HostProfile{}
	}

	var profile HostProfile

	if matches := dsmMajorVersion.FindSubmatch(contents); matches != nil {
		profile.MajorVersion, _ = strconv.Atoi(string(matches[1]))
	}

	if matches := dsmBuildNumber.FindSubmatch(contents); matches != nil {
		profile.BuildNumber = string(matches[1])
	}

	return profile
}

// commandVersion executes a version-reporting command and extracts the
// first N.N.N token from its free-text output.
func (p *Prober) commandVersion(ctx context.Context, binary string, arg string) semver.Version {
	cmdCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, binary, arg).Output()
	if err != nil {
		logger.Debugf(ctx, "Could not get version from %s: %v", binary, err)
		return semver.Unknown
	}

	token := versionToken.FindString(string(output))
	if token == "" {
		return semver.Unknown
	}

	v, err := semver.Parse(token)
	if err != nil {
		return semver.Unknown
	}

	return v
}

func (p *Prober) resolveDocker(ctx context.Context, target string) (semver.Version, error) {
	if target != "" {
		v, err := semver.Parse(target)
		if err != nil {
			return semver.Unknown, fmt.Errorf("docker target: %w", err)
		}

		return v, nil
	}

	body, err := p.fetchListing(ctx, p.cfg.DockerDownloadBase+"/")
	if err != nil {
		return semver.Unknown, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	var candidates []string

	for _, matches := range archiveName.FindAllStringSubmatch(body, -1) {
		candidates = append(candidates, matches[1])
	}

	return semver.Highest(candidates), nil
}

func (p *Prober) resolveCompose(ctx context.Context, target string) (semver.Version, error) {
	if target != "" {
		v, err := semver.Parse(target)
		if err != nil {
			return semver.Unknown, fmt.Errorf("compose target: %w", err)
		}

		return v, nil
	}

	body, err := p.fetchListing(ctx, p.cfg.ComposeReleaseIndex)
	if err != nil {
		return semver.Unknown, fmt.Errorf("%w: %v", ErrComposeUnavailable, err)
	}

	var candidates []string

	for _, matches := range releaseTag.FindAllStringSubmatch(body, -1) {
		// A suffixed tag is a non-stable marker (rc, beta) and is ignored.
		if matches[2] != "" {
			continue
		}

		candidates = append(candidates, matches[1])
	}

	return semver.Highest(candidates), nil
}

// fetchListing retrieves a remote listing page as text.
func (p *Prober) fetchListing(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", err
	}

	response, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s", url, response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}
