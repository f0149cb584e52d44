package nativeext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sources a toolchain home can come from, besides the environment variable names.
const (
	sourcePath     = "PATH"
	sourceFallback = "fallback"
)

// FindExecutable searches searchPath for a file called name.
//
// searchPath is split on the platform list separator (":" or ";"). The
// first entry where entry/name exists wins and its absolute path is
// returned. Empty entries are skipped and no partial matches are made.
//
// # Example
//
//	nvcc, ok := FindExecutable("nvcc", os.Getenv("PATH"))
//	if !ok {
//	    return ErrToolchainNotFound
//	}
func FindExecutable(name, searchPath string) (string, bool) {
	return findInPath(name, searchPath, os.Stat)
}

func findInPath(name, searchPath string, stat func(string) (os.FileInfo, error)) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, dir := range strings.Split(searchPath, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if _, err := stat(candidate); err != nil {
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs, true
		}
		return candidate, true
	}
	return "", false
}

// ToolchainLocator finds the GPU toolchain (nvcc and the CUDA runtime) on the host.
//
// # Resolution Order
//
//  1. The first non-empty variable in HomeEnv (CUDAHOME, then CUDA_PATH)
//  2. A PATH search for nvcc (nvcc.exe on Windows); home is two levels up
//  3. No variable and nothing on PATH: ErrToolchainNotFound
//
// # Fallback
//
// Real-world installs are inconsistent, so a home without an include
// directory is replaced by FallbackHome, and a home without bin/nvcc is
// replaced once more. The second substitution is not verified: the location
// is returned as a best guess with CompilerFound=false.
//
// Both substitutions can silently pick up a different toolchain version
// than the one the environment declared, so each one logs a warning.
//
// Locations are not cached; every call probes the filesystem again.
type ToolchainLocator struct {
	HomeEnv      []string
	FallbackHome string
	Platform     string
	Logger       Logger

	// LookupEnv and Stat default to os.LookupEnv and os.Stat.
	LookupEnv func(key string) (string, bool)
	Stat      func(name string) (os.FileInfo, error)
}

// NewToolchainLocator creates a locator from the toolchain section of cfg.
func NewToolchainLocator(cfg *Config, logger Logger) *ToolchainLocator {
	return &ToolchainLocator{
		HomeEnv:      cfg.Toolchain.HomeEnv,
		FallbackHome: cfg.Toolchain.FallbackHome,
		Platform:     cfg.platform(),
		Logger:       logger,
	}
}

// CompilerName returns the platform-specific GPU compiler binary name.
func (l *ToolchainLocator) CompilerName() string {
	if l.Platform == platformWindows {
		return "nvcc.exe"
	}
	return "nvcc"
}

// ResolveGPUToolchain locates the toolchain home and compiler.
//
// Returns an error wrapping ErrToolchainNotFound only when no home variable
// is set and the compiler is not on PATH. In every other case a location is
// returned, even when the compiler could not be confirmed on disk.
func (l *ToolchainLocator) ResolveGPUToolchain() (*ToolchainLocation, error) {
	logger := loggerOrNop(l.Logger)
	compiler := l.CompilerName()

	var home, source string
	for _, name := range l.HomeEnv {
		if value, ok := l.lookupEnv(name); ok && value != "" {
			home, source = value, name
			break
		}
	}

	if home == "" {
		pathList, _ := l.lookupEnv("PATH")
		found, ok := findInPath(compiler, pathList, l.stat)
		if !ok {
			return nil, fmt.Errorf("%w: the %s binary could not be located in your $PATH; either add it to your path, or set $%s to enable CUDA",
				ErrToolchainNotFound, compiler, l.primaryHomeEnv())
		}
		home = filepath.Dir(filepath.Dir(found))
		source = sourcePath
	}

	if !l.exists(filepath.Join(home, "include")) {
		logger.Warn("Failed to find cuda include directory in %s, using %s", home, l.FallbackHome)
		home, source = l.FallbackHome, sourceFallback
	}

	compilerPath := filepath.Join(home, "bin", compiler)
	found := l.exists(compilerPath)
	if !found {
		logger.Warn("Failed to find %s compiler in %s, trying %s", compiler, compilerPath, l.FallbackHome)
		home, source = l.FallbackHome, sourceFallback
		compilerPath = filepath.Join(home, "bin", compiler)
		found = l.exists(compilerPath)
	}

	logger.Debug("GPU toolchain home %s (from %s), compiler %s", home, source, compilerPath)

	return &ToolchainLocation{
		HomeDir:       home,
		CompilerPath:  compilerPath,
		Source:        source,
		CompilerFound: found,
	}, nil
}

// RuntimeLibraryDir returns the directory holding the GPU runtime library
// for a toolchain home on this platform.
func (l *ToolchainLocator) RuntimeLibraryDir(home string) string {
	if l.Platform == platformWindows {
		return filepath.Join(home, "lib", "x64")
	}
	return filepath.Join(home, "lib64")
}

func (l *ToolchainLocator) primaryHomeEnv() string {
	if len(l.HomeEnv) > 0 {
		return l.HomeEnv[0]
	}
	return "CUDAHOME"
}

func (l *ToolchainLocator) lookupEnv(key string) (string, bool) {
	if l.LookupEnv != nil {
		return l.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

func (l *ToolchainLocator) stat(name string) (os.FileInfo, error) {
	if l.Stat != nil {
		return l.Stat(name)
	}
	return os.Stat(name)
}

func (l *ToolchainLocator) exists(path string) bool {
	_, err := l.stat(path)
	return err == nil
}
