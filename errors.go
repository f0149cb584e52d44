package nativeext

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolchainNotFound indicates the GPU compiler could not be located.
	ErrToolchainNotFound = errors.New("gpu toolchain not found")

	// ErrCompilerTimeout indicates the GPU compiler did not finish in time.
	ErrCompilerTimeout = errors.New("gpu compiler timed out")
)

// FailureKind classifies a failed planning attempt.
//
// The kind is set by the layer that detects the failure, so the orchestrator
// never has to guess from an error message which feature to drop.
type FailureKind int

const (
	// OtherFailure is anything not attributable to a single feature.
	OtherFailure FailureKind = iota
	// GPUFailure means the GPU extension could not be produced.
	GPUFailure
	// NativeFailure means the compiled (non-GPU) extension could not be produced.
	NativeFailure
)

func (k FailureKind) String() string {
	switch k {
	case GPUFailure:
		return "gpu"
	case NativeFailure:
		return "native"
	default:
		return "other"
	}
}

// BuildFailure tags an error with the feature that caused it.
type BuildFailure struct {
	Kind   FailureKind
	Module string // Extension module that was being planned, if any
	Err    error
}

func (e *BuildFailure) Error() string {
	switch e.Kind {
	case GPUFailure:
		return fmt.Sprintf("error building cuda module: %v", e.Err)
	case NativeFailure:
		if e.Module != "" {
			return fmt.Sprintf("error building native extension %s: %v", e.Module, e.Err)
		}
		return fmt.Sprintf("error building native extension: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *BuildFailure) Unwrap() error {
	return e.Err
}

// ClassifyFailure returns the kind of the outermost *BuildFailure in err's
// chain, or OtherFailure when there is none.
func ClassifyFailure(err error) FailureKind {
	var failure *BuildFailure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return OtherFailure
}

// CompilationError is returned when the GPU compiler exits non-zero.
type CompilationError struct {
	Compiler string   // Path of the compiler that was run
	ExitCode int      // Process exit status, -1 if the process never ran
	Output   []string // Combined stdout/stderr lines
	Err      error
}

func (e *CompilationError) Error() string {
	return BuildError("nvcc", e.Output, fmt.Errorf("%s exited with status %d: %w", e.Compiler, e.ExitCode, e.Err)).Error()
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// UnrecoverableBuildError is returned by the orchestrator once there is no
// feature left to downgrade.
type UnrecoverableBuildError struct {
	Request  BuildRequest // Request of the last attempt
	Attempts int
	Warnings []string
	Err      error
}

func (e *UnrecoverableBuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to build after %d attempt(s)", e.Attempts)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UnrecoverableBuildError) Unwrap() error {
	return e.Err
}

// ExitStatus makes the error usable as a process exit code.
func (e *UnrecoverableBuildError) ExitStatus() int {
	return 1
}
