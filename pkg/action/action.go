// Package action defines the contract of a project's build action and runs
// build scripts as subprocesses.
package action

import (
	"context"
	"time"
)

// DefaultShell interprets build scripts when a Descriptor names none.
const DefaultShell = "/bin/sh"

// Descriptor identifies the action to run for a project.
type Descriptor struct {
	Project string
	Script  string
	Shell   string
}

// Outcome is the result of an action that ran to completion.
type Outcome struct {
	ExitCode int
	Duration time.Duration
}

// Success reports whether the action exited with status zero.
func (o Outcome) Success() bool {
	return o.ExitCode == 0
}

// Runner executes build actions. A non-zero exit status is reported through
// Outcome, not as an error; errors mean the action could not be run at all.
type Runner interface {
	Run(ctx context.Context, desc Descriptor, workDir string, env []string) (Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, desc Descriptor, workDir string, env []string) (Outcome, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, desc Descriptor, workDir string, env []string) (Outcome, error) {
	return f(ctx, desc, workDir, env)
}
