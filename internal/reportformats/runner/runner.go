// Package runner executes external programs for the report format service:
// the signature verifier and format generate scripts. It reports the exit
// status to the caller and only fails on spawn and wait errors, leaving the
// interpretation of exit codes to the caller.
package runner

import (
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

// Command describes one program invocation.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// RunAs names an account the program is run as. Dropping to it
	// requires the calling process to be privileged. Empty runs the
	// program with the caller's credentials.
	RunAs string
}

type Result struct {
	ExitCode int
}

// Runner is the capability to run a command, optionally as a restricted
// principal.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, apperrors.Error)
}

// ExecRunner runs commands with os/exec. Dropping privileges is implemented
// on unix by setting the child's credentials before exec.
type ExecRunner struct{}

func New() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, apperrors.Error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if c.RunAs != "" {
		if err := setCredential(cmd, c.RunAs); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("account", c.RunAs).Msg("unable to drop privileges")
			return Result{ExitCode: -1}, err
		}
	}

	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}
	if ctx.Err() != nil {
		return Result{ExitCode: -1}, ErrCancelled.Err(ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		log.Ctx(ctx).Debug().Str("command", c.Path).Int("exit_code", code).Msg("command exited with non-zero status")
		return Result{ExitCode: code}, nil
	}
	log.Ctx(ctx).Error().Err(err).Str("command", c.Path).Msg("failed to run command")
	return Result{ExitCode: -1}, ErrSpawn.MsgErr("failed to run "+c.Path, err)
}
