package domain

import "fmt"

// ErrorKind classifies the closed set of fatal conditions the core
// produces. Callers dispatch on the kind and render the remediation text
// themselves.
type ErrorKind int

const (
	// KindConfig covers fatal configuration errors: driver unreachable,
	// invalid project directory, no usable generator, mismatched build
	// directory metadata, malformed hint rule.
	KindConfig ErrorKind = iota

	// KindTargetConflict means the target candidate sources disagree.
	KindTargetConflict

	// KindPlatform means the platform cannot spawn a subprocess with
	// captured streams. Distinct from a build error.
	KindPlatform
)

// FatalError terminates the current command. Remediation is carried
// separately from the message so callers can render or localize it
// independently. Fatal errors are never retried automatically.
type FatalError struct {
	Kind        ErrorKind
	Message     string
	Remediation string
}

func (e *FatalError) Error() string {
	if e.Remediation == "" {
		return e.Message
	}
	return e.Message + " " + e.Remediation
}

// NewConfigError builds a Config-kind fatal error without remediation.
func NewConfigError(format string, a ...any) *FatalError {
	return &FatalError{Kind: KindConfig, Message: fmt.Sprintf(format, a...)}
}

// NewConfigErrorWithRemediation builds a Config-kind fatal error carrying a
// specific remediation instruction.
func NewConfigErrorWithRemediation(message, remediation string) *FatalError {
	return &FatalError{Kind: KindConfig, Message: message, Remediation: remediation}
}

// NewTargetConflict builds a TargetConflict-kind fatal error.
func NewTargetConflict(message, remediation string) *FatalError {
	return &FatalError{Kind: KindTargetConflict, Message: message, Remediation: remediation}
}

// NewPlatformError builds a Platform-kind fatal error.
func NewPlatformError(message, remediation string) *FatalError {
	return &FatalError{Kind: KindPlatform, Message: message, Remediation: remediation}
}

// ToolFailure reports a tool that exited with a non-zero code. The log
// paths are empty when output capture was disabled.
type ToolFailure struct {
	Tool      string
	ExitCode  int
	StdoutLog string
	StderrLog string
}

func (e *ToolFailure) Error() string {
	if e.StderrLog != "" && e.StdoutLog != "" {
		return fmt.Sprintf("%s failed with exit code %d, output of the command is in the %s and %s",
			e.Tool, e.ExitCode, e.StderrLog, e.StdoutLog)
	}
	return fmt.Sprintf("%s failed with exit code %d", e.Tool, e.ExitCode)
}
