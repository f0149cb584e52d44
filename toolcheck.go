package nativeext

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Seams for tests; production code always goes through these.
var (
	execLookPath       = exec.LookPath
	execCommandContext = exec.CommandContext
)

// ToolChecker is an optional interface for extension builders that require
// host tools.
//
// The planner calls CheckTools before Plan when a builder implements it, so
// a missing compiler is reported as a failure of that builder's feature
// instead of surfacing later in the downstream packaging step.
//
// # Platform Support
//
// Tool alternatives handle platform differences:
//   - Windows: cl (MSVC) instead of gcc
//   - macOS: clang by default
//   - Linux: gcc by default
//
// # Example Implementation
//
//	func (b *NativeExtensionBuilder) RequiredTools() []ToolRequirement {
//	    return []ToolRequirement{
//	        {Name: "gcc", Alternatives: []string{"clang", "cc", "cl"}, Purpose: "C/C++ compiler"},
//	    }
//	}
//
//	func (b *NativeExtensionBuilder) CheckTools() error {
//	    return CheckRequiredTools(b.RequiredTools())
//	}
type ToolChecker interface {
	// RequiredTools returns the list of tools this builder needs.
	RequiredTools() []ToolRequirement

	// CheckTools verifies that all required tools are available.
	//
	// Returns nil if all required tools are found, or an error describing
	// which tools are missing. Optional tools don't cause errors if missing.
	CheckTools() error
}

// ToolRequirement describes a build tool dependency.
//
// Tool with alternatives:
//
//	ToolRequirement{
//	    Name: "gcc",
//	    Alternatives: []string{"clang", "cc"},
//	    Purpose: "C compiler",
//	}
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "gcc", "nvcc").
	Name string

	// Alternatives are alternative tool names that can satisfy this requirement.
	Alternatives []string

	// Optional indicates this tool is optional and won't cause an error if missing.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// CheckToolAvailable checks if a tool is available in the system PATH.
//
// Returns nil if the tool is found in PATH, or an error naming the tool.
func CheckToolAvailable(tool string) error {
	_, err := execLookPath(tool)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", tool)
	}
	return nil
}

// CheckRequiredTools verifies all required tools are available.
//
// # Behavior
//
//   - Checks the primary tool name first
//   - If not found, tries each alternative tool in order
//   - Optional tools are checked but don't cause errors
//   - Returns all missing required tools in a single error
//
// # Error Format
//
// Single missing tool:
//
//	gcc (C/C++ compiler) not found in PATH
//
// Multiple missing tools:
//
//	missing required tools: gcc (C/C++ compiler), nvcc (CUDA compiler)
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range requirements {
		found := CheckToolAvailable(req.Name) == nil

		if !found && len(req.Alternatives) > 0 {
			for _, alt := range req.Alternatives {
				if CheckToolAvailable(alt) == nil {
					found = true
					break
				}
			}
		}

		if !found && !req.Optional {
			if req.Purpose != "" {
				missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
			} else {
				missingTools = append(missingTools, req.Name)
			}
		}
	}

	if len(missingTools) == 0 {
		return nil
	}

	if len(missingTools) == 1 {
		return fmt.Errorf("%s not found in PATH", missingTools[0])
	}

	return fmt.Errorf("missing required tools: %s", strings.Join(missingTools, ", "))
}

// commandOutput runs a short informational command and returns its trimmed
// stdout. Used for version probes, never for compilation.
func commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := execCommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
