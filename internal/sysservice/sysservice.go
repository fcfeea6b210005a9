// Package sysservice controls the DSM package service hosting the docker
// daemon. Commands go through the platform service tool
// (synoservicectl --status|--stop|--start NAME); the process table is
// consulted as a secondary signal for the daemon executable itself.
package sysservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/syno-docker-update/internal/config"
	"github.com/oshokin/syno-docker-update/internal/logger"
)

// Status is the reported state of the managed service.
type Status int

const (
	// StatusUnknown means the service tool output could not be interpreted.
	StatusUnknown Status = iota
	// StatusRunning means the service reports as running.
	StatusRunning
	// StatusStopped means the service reports as stopped.
	StatusStopped
)

// String renders the status for logs.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrRestartFailed is returned when the service does not report running
// after a start command. Callers may downgrade it to a warning under force.
var ErrRestartFailed = errors.New("service failed to restart")

// Controller issues service control commands and reports status.
type Controller struct {
	tool          string
	serviceName   string
	daemonProcess string
	timeout       time.Duration
}

// New creates a controller for the configured service.
func New(cfg *config.Config) *Controller {
	return &Controller{
		tool:          cfg.ServiceTool,
		serviceName:   cfg.ServiceName,
		daemonProcess: cfg.DaemonProcess,
		timeout:       cfg.Timeout,
	}
}

// Status queries the service tool and parses its free-text reply.
func (c *Controller) Status(ctx context.Context) Status {
	output, err := c.run(ctx, "--status")
	if err != nil {
		logger.Debugf(ctx, "Service status query failed: %v", err)
		return StatusUnknown
	}

	return parseStatus(output)
}

// Stop issues the stop command and confirms via the process table that
// the daemon executable is gone. A lingering process is logged, not fatal:
// the tool may report stopped while the daemon finishes shutting down.
func (c *Controller) Stop(ctx context.Context) error {
	logger.InfoKV(ctx, "Stopping service", "service", c.serviceName)

	if _, err := c.run(ctx, "--stop"); err != nil {
		return fmt.Errorf("stop %s: %w", c.serviceName, err)
	}

	if c.daemonRunning(ctx) {
		logger.Warnf(ctx, "Process %s still present after stopping %s", c.daemonProcess, c.serviceName)
	}

	return nil
}

// Start issues the start command and re-polls status once; a service not
// reporting running afterward yields ErrRestartFailed.
func (c *Controller) Start(ctx context.Context) error {
	logger.InfoKV(ctx, "Starting service", "service", c.serviceName)

	if _, err := c.run(ctx, "--start"); err != nil {
		return fmt.Errorf("start %s: %w", c.serviceName, err)
	}

	if status := c.Status(ctx); status != StatusRunning {
		return fmt.Errorf("%w: %s reports %s", ErrRestartFailed, c.serviceName, status)
	}

	return nil
}

// run executes the service tool with the given action under a timeout.
func (c *Controller) run(ctx context.Context, action string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, c.tool, action, c.serviceName).CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s %s %s: %w", c.tool, action, c.serviceName, err)
	}

	return string(output), nil
}

// daemonRunning checks the process table for the daemon executable,
// excluding this process.
func (c *Controller) daemonRunning(ctx context.Context) bool {
	processes, err := ps.Processes()
	if err != nil {
		logger.Debugf(ctx, "Unable to list processes: %v", err)
		return false
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if process.Executable() == c.daemonProcess {
			return true
		}
	}

	return false
}

// parseStatus interprets the free-text status reply. The tool prints a
// line containing "running" or "stop"/"stopped" after the service name.
func parseStatus(output string) Status {
	lowered := strings.ToLower(output)

	switch {
	case strings.Contains(lowered, "stop") || strings.Contains(lowered, "not running"):
		return StatusStopped
	case strings.Contains(lowered, "running"):
		return StatusRunning
	default:
		return StatusUnknown
	}
}
