package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ShellRunner runs build scripts with a shell.
type ShellRunner struct {
	// Stdout and Stderr receive the script's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// InheritEnv places the process environment beneath the action's
	// environment. Entries given to Run win on conflict.
	InheritEnv bool
}

// NewShellRunner creates a runner that streams output to stdout and stderr
// and inherits the process environment.
func NewShellRunner(stdout, stderr io.Writer) *ShellRunner {
	return &ShellRunner{
		Stdout:     stdout,
		Stderr:     stderr,
		InheritEnv: true,
	}
}

// Run executes desc.Script in workDir.
func (r *ShellRunner) Run(ctx context.Context, desc Descriptor, workDir string, env []string) (Outcome, error) {
	if desc.Script == "" {
		return Outcome{}, fmt.Errorf("script is required")
	}

	shell := desc.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, desc.Script)
	cmd.Dir = workDir

	// exec keeps the last value of a duplicated key
	base := []string{}
	if r.InheritEnv {
		base = os.Environ()
	}
	cmd.Env = append(base, env...)

	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{Duration: time.Since(start)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return outcome, fmt.Errorf("failed to execute %s: %w", desc.Script, err)
	}

	return outcome, nil
}
