package convert

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunSucceeds(t *testing.T) {
	requireShell(t)
	r := NewRunner([]string{"sh", "-c", "exit 0"}, time.Second, zerolog.Nop())
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRunReportsStderr(t *testing.T) {
	requireShell(t)
	r := NewRunner([]string{"sh", "-c", "echo quota exceeded >&2; exit 3"}, time.Second, zerolog.Nop())

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestRunTimesOut(t *testing.T) {
	requireShell(t)
	r := NewRunner([]string{"sh", "-c", "sleep 5"}, 50*time.Millisecond, zerolog.Nop())

	err := r.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunNotConfigured(t *testing.T) {
	r := NewRunner(nil, 0, zerolog.Nop())
	if err := r.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
