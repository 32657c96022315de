package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"battlelog-tracker/internal/config"
	"battlelog-tracker/internal/constants"

	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("conversion command is not configured")

// Runner invokes the external step that turns the newest raw row into a
// converted output row.
type Runner struct {
	argv    []string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRunner(argv []string, timeout time.Duration, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = constants.ConvertTimeout
	}
	return &Runner{
		argv:    argv,
		timeout: timeout,
		logger:  logger.With().Str("component", "convert").Logger(),
	}
}

func NewRunnerFromConfig(cfg *config.Config, logger zerolog.Logger) *Runner {
	return NewRunner(cfg.ConvertCommand, cfg.ConvertTimeout, logger)
}

// Run executes the command and waits for it. A non-zero exit, a timeout and
// a missing binary are all errors; stderr is attached to the error.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.argv) == 0 {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		msg := strings.TrimSpace(stderr.String())
		r.logger.Error().
			Err(err).
			Str("command", r.argv[0]).
			Str("stderr", msg).
			Dur("duration", duration).
			Msg("conversion failed")
		if msg != "" {
			return fmt.Errorf("failed to run %s: %w: %s", r.argv[0], err, msg)
		}
		return fmt.Errorf("failed to run %s: %w", r.argv[0], err)
	}

	r.logger.Info().Str("command", r.argv[0]).Dur("duration", duration).Msg("conversion finished")
	return nil
}
