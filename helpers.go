package nativeext

import (
	"fmt"
	"strings"
)

// MatchesExtension checks if a filename has any of the given extensions.
//
// The check is case-insensitive. It is used to validate configured sources:
// the GPU source must be a .cu file and native sources must be C or C++.
//
// # Example
//
//	if !MatchesExtension(cfg.GPU.KernelSource, ".cu") {
//	    return fmt.Errorf("kernel source must be a .cu file")
//	}
func MatchesExtension(filename string, extensions ...string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(strings.ToLower(filename), strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// BuildError creates a standardized build error with output context.
//
// This helper formats build errors consistently, including the tool output
// for debugging.
//
// # Format
//
// With error and output:
//
//	nvcc build failed: /usr/local/cuda/bin/nvcc exited with status 1
//
//	Build output:
//	kernel.cu(12): error: identifier "foo" is undefined
//
// With error but no output:
//
//	nvcc build failed: /usr/local/cuda/bin/nvcc exited with status 1
//
// With output but no error:
//
//	nvcc build failed
//
//	Build output:
//	... output lines ...
func BuildError(tool string, output []string, err error) error {
	outputStr := strings.TrimRight(strings.Join(output, "\n"), "\n")

	var prefix string
	if err != nil {
		prefix = fmt.Sprintf("%s build failed: %v", tool, err)
	} else {
		prefix = fmt.Sprintf("%s build failed", tool)
	}

	if outputStr != "" {
		return fmt.Errorf("%s\n\nBuild output:\n%s", prefix, outputStr)
	}

	return fmt.Errorf("%s", prefix)
}

// splitOutput turns combined process output into lines, dropping the
// trailing empty line a final newline would produce.
func splitOutput(output []byte) []string {
	text := strings.TrimRight(string(output), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}
