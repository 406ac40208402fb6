package sandbox

import (
	"context"
	"errors"
	"testing"
)

func TestDetector_Check_NotInstalled(t *testing.T) {
	d := &Detector{
		LookPath: func(name string) (string, error) { return "", errors.New("not found") },
		Ping:     func(ctx context.Context, rt Runtime) bool { t.Fatal("ping should not be called"); return false },
	}

	got := d.Check(context.Background())
	if got.Status != StatusNotInstalled {
		t.Fatalf("expected NotInstalled, got %s", got.Status)
	}
	if got.Runtime != "" {
		t.Fatalf("expected no runtime attributed, got %q", got.Runtime)
	}
}

func TestDetector_Check_Available(t *testing.T) {
	d := &Detector{
		LookPath: func(name string) (string, error) {
			if name == "docker" {
				return "/usr/bin/docker", nil
			}
			return "", errors.New("not found")
		},
		Ping: func(ctx context.Context, rt Runtime) bool { return true },
	}

	got := d.Check(context.Background())
	if got.Status != StatusAvailable {
		t.Fatalf("expected Available, got %s", got.Status)
	}
	if got.Runtime != RuntimeDocker {
		t.Fatalf("expected docker runtime, got %s", got.Runtime)
	}
}

func TestDetector_Check_NotRunning(t *testing.T) {
	d := &Detector{
		LookPath: func(name string) (string, error) {
			if name == "podman" {
				return "/usr/bin/podman", nil
			}
			return "", errors.New("not found")
		},
		Ping: func(ctx context.Context, rt Runtime) bool { return false },
	}

	got := d.Check(context.Background())
	if got.Status != StatusNotRunning {
		t.Fatalf("expected NotRunning, got %s", got.Status)
	}
	if got.Runtime != RuntimePodman {
		t.Fatalf("expected podman runtime, got %s", got.Runtime)
	}
}

func TestDetector_Check_PrefersDockerOverPodman(t *testing.T) {
	d := &Detector{
		LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		Ping:     func(ctx context.Context, rt Runtime) bool { return true },
	}

	got := d.Check(context.Background())
	if got.Runtime != RuntimeDocker {
		t.Fatalf("expected docker preferred when both present, got %s", got.Runtime)
	}
}

func TestDisabled(t *testing.T) {
	got := Disabled()
	if got.Status != StatusDisabled {
		t.Fatalf("expected Disabled, got %s", got.Status)
	}
}
