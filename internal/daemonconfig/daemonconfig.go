// Package daemonconfig rewrites the dockerd JSON configuration. The file
// has a fixed shape and is written wholesale, never merged field by field:
// its only job is to guarantee a log driver is configured at all, while a
// config a user has since hand-edited with a log driver stays untouched.
package daemonconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// logDriverToken marks a config that already declares a log driver.
const logDriverToken = `"log-driver"`

const (
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// DaemonConfig is the fixed-shape dockerd configuration.
type DaemonConfig struct {
	DataRoot        string   `json:"data-root"`
	LogDriver       string   `json:"log-driver"`
	RegistryMirrors []string `json:"registry-mirrors"`
	Group           string   `json:"group"`
}

// Default returns the configuration written for a DSM Docker package,
// storing images under dataRoot.
func Default(dataRoot string) DaemonConfig {
	return DaemonConfig{
		DataRoot:        dataRoot,
		LogDriver:       "json-file",
		RegistryMirrors: []string{},
		Group:           "administrators",
	}
}

// Render produces the JSON document written to disk.
func (c DaemonConfig) Render() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render daemon config: %w", err)
	}

	return append(data, '\n'), nil
}

// EnsureLogDriver writes cfg to path when the file is absent or does not
// mention the log-driver token, creating parent directories as needed.
// It reports whether the file was written; calling it again on a file
// already carrying the token changes nothing.
func EnsureLogDriver(path string, cfg DaemonConfig) (bool, error) {
	current, err := os.ReadFile(filepath.Clean(path))
	if err == nil && strings.Contains(string(current), logDriverToken) {
		return false, nil
	}

	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read daemon config: %w", err)
	}

	data, err := cfg.Render()
	if err != nil {
		return false, err
	}

	if err = os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return false, fmt.Errorf("create daemon config directory: %w", err)
	}

	if err = os.WriteFile(path, data, filePermissions); err != nil {
		return false, fmt.Errorf("write daemon config: %w", err)
	}

	return true, nil
}
