package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a build failure.
type ErrorKind string

const (
	// KindProjectNotFound indicates a name with no mapping, or whose mapped
	// directory or manifest is missing.
	KindProjectNotFound ErrorKind = "project_not_found"

	// KindConfig indicates a malformed manifest or a missing build script.
	KindConfig ErrorKind = "config"

	// KindCircularDependency indicates a project that transitively depends
	// on itself.
	KindCircularDependency ErrorKind = "circular_dependency"

	// KindLock indicates the lock marker could not be created or removed for
	// a reason other than another holder.
	KindLock ErrorKind = "lock"

	// KindActionFailed indicates a build action that could not run or
	// exited non-zero.
	KindActionFailed ErrorKind = "action_failed"

	// KindLedger indicates the ledger could not be read or written.
	KindLedger ErrorKind = "ledger"

	// KindInvalidArgument indicates a bad caller argument.
	KindInvalidArgument ErrorKind = "invalid_argument"
)

// BuildError is the error type returned by Build.
// nolint:revive // BuildError reads better at call sites than build.Error
type BuildError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Project is the project the error is about, if any.
	Project string `json:"project,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Chain is the dependency path of a circular dependency, from the project
	// the build was started for to the project that repeats. The repeated
	// project occurs twice.
	Chain []string `json:"chain,omitempty"`

	// ExitCode is the action's exit status, or -1 if it could not be started.
	ExitCode int `json:"exit_code,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Project != "" {
		fmt.Fprintf(&b, " (project=%s)", e.Project)
	}
	if len(e.Chain) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Chain, " -> "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is matches any *BuildError of the same kind, so the sentinels below work
// with errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrProjectNotFound    = &BuildError{Kind: KindProjectNotFound}
	ErrConfig             = &BuildError{Kind: KindConfig}
	ErrCircularDependency = &BuildError{Kind: KindCircularDependency}
	ErrLockAcquisition    = &BuildError{Kind: KindLock}
	ErrBuildActionFailed  = &BuildError{Kind: KindActionFailed}
	ErrLedger             = &BuildError{Kind: KindLedger}
	ErrInvalidArgument    = &BuildError{Kind: KindInvalidArgument}
)

// NewProjectNotFoundError creates a new project-not-found error.
func NewProjectNotFoundError(project string, err error) *BuildError {
	return &BuildError{
		Kind:    KindProjectNotFound,
		Project: project,
		Message: "project not found",
		Err:     err,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(project, message string, err error) *BuildError {
	return &BuildError{
		Kind:    KindConfig,
		Project: project,
		Message: message,
		Err:     err,
	}
}

// NewCircularDependencyError creates a new circular dependency error. chain
// must end with a project that occurs earlier in it.
func NewCircularDependencyError(chain []string) *BuildError {
	project := ""
	if len(chain) > 0 {
		project = chain[len(chain)-1]
	}
	return &BuildError{
		Kind:    KindCircularDependency,
		Project: project,
		Message: "circular dependency",
		Chain:   append([]string(nil), chain...),
	}
}

// NewLockError creates a new lock acquisition error.
func NewLockError(project string, err error) *BuildError {
	return &BuildError{
		Kind:    KindLock,
		Project: project,
		Message: "failed to acquire project lock",
		Err:     err,
	}
}

// NewActionFailedError creates a new build action failure.
func NewActionFailedError(project string, exitCode int, err error) *BuildError {
	message := fmt.Sprintf("build action exited with status %d", exitCode)
	if exitCode < 0 {
		message = "build action could not be run"
	}
	return &BuildError{
		Kind:     KindActionFailed,
		Project:  project,
		Message:  message,
		ExitCode: exitCode,
		Err:      err,
	}
}

// NewLedgerError creates a new ledger error.
func NewLedgerError(project, message string, err error) *BuildError {
	return &BuildError{
		Kind:    KindLedger,
		Project: project,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgumentError creates a new invalid argument error.
func NewInvalidArgumentError(message string) *BuildError {
	return &BuildError{
		Kind:    KindInvalidArgument,
		Message: message,
	}
}

// KindOf returns the kind of the first *BuildError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsProjectNotFound returns true if the error is a project-not-found error.
func IsProjectNotFound(err error) bool {
	return KindOf(err) == KindProjectNotFound
}

// IsConfig returns true if the error is a configuration error.
func IsConfig(err error) bool {
	return KindOf(err) == KindConfig
}

// IsCircularDependency returns true if the error is a circular dependency.
func IsCircularDependency(err error) bool {
	return KindOf(err) == KindCircularDependency
}

// IsLockAcquisition returns true if the error is a lock error.
func IsLockAcquisition(err error) bool {
	return KindOf(err) == KindLock
}

// IsBuildActionFailed returns true if the error is a build action failure.
func IsBuildActionFailed(err error) bool {
	return KindOf(err) == KindActionFailed
}
