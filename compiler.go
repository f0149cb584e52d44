package nativeext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/sh"
)

// GPUCompiler runs nvcc to turn the GPU kernel source into a static library
// the extension module links against.
//
// The invocation is deterministic for a given configuration:
//
//	nvcc [-allow-unsupported-compiler] <kernel.cu> -lib -o <build>/lib<name>.a
//	     -Xcompiler <host,flags> -I<host include> --std c++14
//	     --expt-extended-lambda --expt-relaxed-constexpr <arch flags>
//
// One library built with the default arch flags runs on every supported GPU
// generation.
//
// There is no retry here. A failure is returned as *CompilationError and the
// orchestrator decides what to drop. On failure or timeout the partial
// library is removed, together with the output directory when this call
// created it.
type GPUCompiler struct {
	ProjectDir    string
	BuildDir      string
	Platform      string
	ArchFlags     []string
	Std           string
	ExtendedFlags []string
	// AllowUnsupportedCompiler lets nvcc accept host compilers newer than it knows.
	AllowUnsupportedCompiler bool
	// Timeout bounds a single compiler run. Zero means no timeout.
	Timeout time.Duration
	Logger  Logger
}

// CompileRequest is the input of a single GPU library build.
type CompileRequest struct {
	SourceFile      string   // Kernel source, relative to ProjectDir
	CompilerPath    string   // Resolved nvcc path
	HostCompileArgs []string // Host compiler flags, passed through -Xcompiler
	IncludeDir      string   // Interpreter native-extension headers
	LibraryName     string   // Base name, e.g. _cext_gpu
}

// CompiledLibrary describes the static library produced by CompileGPULibrary.
type CompiledLibrary struct {
	OutputDir   string // Directory to add to the extension's library dirs
	LibraryName string // Base name to add to the extension's libraries
	Path        string // Full path of the library file
}

// NewGPUCompiler creates a compiler from cfg.
func NewGPUCompiler(cfg *Config, logger Logger) (*GPUCompiler, error) {
	timeout, err := cfg.compileTimeout()
	if err != nil {
		return nil, err
	}
	return &GPUCompiler{
		ProjectDir:               cfg.ProjectDir,
		BuildDir:                 cfg.BuildDir,
		Platform:                 cfg.platform(),
		ArchFlags:                cfg.Toolchain.ArchFlags,
		Std:                      cfg.Toolchain.Std,
		ExtendedFlags:            cfg.Toolchain.ExtendedFlags,
		AllowUnsupportedCompiler: cfg.Toolchain.AllowUnsupportedCompiler,
		Timeout:                  timeout,
		Logger:                   logger,
	}, nil
}

// LibraryFileName returns the static library file name for a base name:
// <name>.lib on Windows, lib<name>.a elsewhere.
func (c *GPUCompiler) LibraryFileName(name string) string {
	if c.Platform == platformWindows {
		return name + ".lib"
	}
	return "lib" + name + ".a"
}

// Args returns the compiler arguments for req, without the compiler itself.
func (c *GPUCompiler) Args(req CompileRequest) []string {
	var args []string

	if c.AllowUnsupportedCompiler {
		args = append(args, "-allow-unsupported-compiler")
	}

	args = append(args, req.SourceFile, "-lib", "-o", c.outputPath(req.LibraryName))

	if len(req.HostCompileArgs) > 0 {
		args = append(args, "-Xcompiler", strings.Join(req.HostCompileArgs, ","))
	}
	if req.IncludeDir != "" {
		args = append(args, "-I"+req.IncludeDir)
	}
	if c.Std != "" {
		args = append(args, "--std", c.Std)
	}

	args = append(args, c.ExtendedFlags...)
	args = append(args, c.ArchFlags...)

	return args
}

// CompileGPULibrary compiles req.SourceFile into a static library.
//
// Blocks until nvcc exits, ctx is done, or Timeout expires.
func (c *GPUCompiler) CompileGPULibrary(ctx context.Context, req CompileRequest) (*CompiledLibrary, error) {
	logger := loggerOrNop(c.Logger)

	if req.LibraryName == "" {
		return nil, fmt.Errorf("no library name given for %s", req.SourceFile)
	}

	outDir := c.projectPath(c.BuildDir)
	created, err := ensureDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("creating build directory %s: %w", outDir, err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := c.Args(req)
	logger.Info("NVCC ==> %s", req.CompilerPath)
	logger.Info("Compiling cuda extension, calling nvcc with arguments:")
	logger.Info("%s %s", req.CompilerPath, strings.Join(args, " "))

	//nolint:gosec // Compiler path comes from toolchain discovery
	cmd := execCommandContext(ctx, req.CompilerPath, args...)
	cmd.Dir = c.ProjectDir

	output, runErr := cmd.CombinedOutput()
	if runErr == nil {
		return &CompiledLibrary{
			OutputDir:   c.BuildDir,
			LibraryName: req.LibraryName,
			Path:        c.projectPath(c.outputPath(req.LibraryName)),
		}, nil
	}

	compileErr := &CompilationError{
		Compiler: req.CompilerPath,
		ExitCode: -1,
		Output:   splitOutput(output),
		Err:      runErr,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		compileErr.Err = fmt.Errorf("%w after %s", ErrCompilerTimeout, c.Timeout)
	case errors.As(runErr, &exitErr):
		compileErr.ExitCode = sh.ExitStatus(runErr)
	}

	c.cleanup(req.LibraryName, outDir, created)
	return nil, compileErr
}

// cleanup removes what a failed run may have left behind.
func (c *GPUCompiler) cleanup(libraryName, outDir string, createdDir bool) {
	logger := loggerOrNop(c.Logger)

	if err := sh.Rm(c.projectPath(c.outputPath(libraryName))); err != nil {
		logger.Debug("removing partial library: %v", err)
	}
	if createdDir {
		if err := sh.Rm(outDir); err != nil {
			logger.Debug("removing build directory %s: %v", outDir, err)
		}
	}
}

func (c *GPUCompiler) outputPath(libraryName string) string {
	return filepath.Join(c.BuildDir, c.LibraryFileName(libraryName))
}

func (c *GPUCompiler) projectPath(path string) string {
	if filepath.IsAbs(path) || c.ProjectDir == "" {
		return path
	}
	return filepath.Join(c.ProjectDir, path)
}

// ensureDir creates dir if needed and reports whether it had to.
func ensureDir(dir string) (bool, error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}
