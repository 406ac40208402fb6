// Package sandbox creates and tracks the worker containers a job
// delegates to: proactive runtime detection, job-scoped container
// lifecycle, and the poll loop a delegating tool drives against it.
package sandbox

import (
	"context"
	"os/exec"
	"runtime"
	"time"
)

// Runtime identifies which container engine was detected on the host.
type Runtime string

const (
	RuntimeDocker Runtime = "docker"
	RuntimePodman Runtime = "podman"
)

// Status reports container-runtime availability.
type Status string

const (
	// StatusAvailable means a runtime binary is on PATH and its daemon
	// answered a ping.
	StatusAvailable Status = "available"
	// StatusNotInstalled means neither docker nor podman is on PATH.
	StatusNotInstalled Status = "not installed"
	// StatusNotRunning means a binary was found but its daemon did not
	// answer.
	StatusNotRunning Status = "not running"
	// StatusDisabled means no check was performed because the sandbox
	// feature is turned off.
	StatusDisabled Status = "disabled"
)

// Platform carries OS-specific install/start guidance.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// CurrentPlatform maps runtime.GOOS to a Platform, defaulting to Linux
// for anything unrecognized (BSDs and friends behave like Linux here).
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// InstallHint returns human-readable installation instructions for p.
func (p Platform) InstallHint() string {
	switch p {
	case PlatformMacOS:
		return "Install Docker Desktop: https://docs.docker.com/desktop/install/mac-install/ or Podman Desktop: https://podman-desktop.io/"
	case PlatformWindows:
		return "Install Docker Desktop: https://docs.docker.com/desktop/install/windows-install/ or Podman Desktop: https://podman-desktop.io/"
	default:
		return "Install Docker Engine: https://docs.docker.com/engine/install/ or Podman: https://podman.io/docs/installation#installing-on-linux"
	}
}

// StartHint returns human-readable daemon-start instructions for p.
func (p Platform) StartHint() string {
	switch p {
	case PlatformMacOS:
		return "Start Docker Desktop from Applications, or run: podman machine start"
	case PlatformWindows:
		return "Start Docker Desktop or Podman Desktop from the Start menu"
	default:
		return "Start Docker: sudo systemctl start docker, or start Podman: systemctl --user start podman.socket"
	}
}

// Detection is the result of a container runtime probe.
type Detection struct {
	Status   Status
	Platform Platform
	Runtime  Runtime // zero value when Status is NotInstalled or Disabled
}

// Detector probes the host for a usable container runtime. The zero
// value is ready to use; LookPath and Ping are overridable for tests.
type Detector struct {
	// LookPath resolves a binary name to a path, matching exec.LookPath.
	// Defaults to exec.LookPath when nil.
	LookPath func(name string) (string, error)
	// Ping invokes `<runtime> info` (or equivalent) and reports whether
	// the daemon answered. Defaults to shelling out via exec.CommandContext.
	Ping func(ctx context.Context, runtime Runtime) bool
}

func (d *Detector) lookPath(name string) (string, error) {
	if d.LookPath != nil {
		return d.LookPath(name)
	}
	return exec.LookPath(name)
}

func (d *Detector) ping(ctx context.Context, rt Runtime) bool {
	if d.Ping != nil {
		return d.Ping(ctx, rt)
	}
	cmd := exec.CommandContext(ctx, string(rt), "info")
	return cmd.Run() == nil
}

// Check probes for docker, preferring it over podman when both are
// present, and confirms the daemon answers before reporting Available.
func (d *Detector) Check(ctx context.Context) Detection {
	platform := CurrentPlatform()

	_, dockerErr := d.lookPath("docker")
	_, podmanErr := d.lookPath("podman")
	hasDocker := dockerErr == nil
	hasPodman := podmanErr == nil

	if !hasDocker && !hasPodman {
		return Detection{Status: StatusNotInstalled, Platform: platform}
	}

	rt := RuntimePodman
	if hasDocker {
		rt = RuntimeDocker
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if d.ping(probeCtx, rt) {
		return Detection{Status: StatusAvailable, Platform: platform, Runtime: rt}
	}

	return Detection{Status: StatusNotRunning, Platform: platform, Runtime: rt}
}

// Disabled reports a Detection reflecting that the sandbox feature is
// switched off, without running any probe.
func Disabled() Detection {
	return Detection{Status: StatusDisabled, Platform: CurrentPlatform()}
}
