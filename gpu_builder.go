package nativeext

import (
	"context"
	"errors"
	"path/filepath"
)

// GPUExtensionBuilder compiles the GPU kernel with nvcc and emits the spec of
// the extension module that links it.
//
// Steps:
//  1. Resolve the toolchain (ToolchainLocator)
//  2. Derive the runtime library dir: <home>/lib/x64 on Windows, <home>/lib64 elsewhere
//  3. Compile the kernel into build/lib<name>.a (GPUCompiler), with -fPIC off Windows
//  4. Emit a spec linking <name> and the runtime, depending on the kernel,
//     its headers and the project config
//
// The GPU extension shares the native extension's host flags, so it is only
// built together with it. Any failure is returned as a *BuildFailure of kind GPUFailure.
type GPUExtensionBuilder struct {
	cfg      *Config
	locator  *ToolchainLocator
	compiler *GPUCompiler
}

// NewGPUExtensionBuilder creates a builder for cfg.GPU.
func NewGPUExtensionBuilder(cfg *Config, locator *ToolchainLocator, compiler *GPUCompiler) *GPUExtensionBuilder {
	return &GPUExtensionBuilder{
		cfg:      cfg,
		locator:  locator,
		compiler: compiler,
	}
}

// Name returns the builder name
func (b *GPUExtensionBuilder) Name() string {
	return "cuda"
}

// FailureKind returns GPUFailure
func (b *GPUExtensionBuilder) FailureKind() FailureKind {
	return GPUFailure
}

// Wanted checks the GPU flag of the request
func (b *GPUExtensionBuilder) Wanted(req BuildRequest) bool {
	return req.WantGPUExtension
}

// Plan compiles the kernel library and returns the GPU extension spec
func (b *GPUExtensionBuilder) Plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error) {
	spec, err := b.plan(ctx, req)
	if err != nil {
		return ExtensionSpec{}, &BuildFailure{Kind: GPUFailure, Module: b.cfg.GPU.Module, Err: err}
	}
	return spec, nil
}

func (b *GPUExtensionBuilder) plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error) {
	if b.cfg.GPU.Module == "" {
		return ExtensionSpec{}, errors.New("no gpu module configured")
	}
	// The kernel is built with the native extension's host flags.
	if !req.WantNativeExtension {
		return ExtensionSpec{}, errors.New("the gpu extension requires the native extension")
	}

	location, err := b.locator.ResolveGPUToolchain()
	if err != nil {
		return ExtensionSpec{}, err
	}

	runtimeDir := b.locator.RuntimeLibraryDir(location.HomeDir)

	compileArgs := nativeCompileArgs(b.cfg.platform())
	if b.cfg.platform() != platformWindows {
		compileArgs = append(compileArgs, "-fPIC")
	}

	lib, err := b.compiler.CompileGPULibrary(ctx, CompileRequest{
		SourceFile:      b.cfg.GPU.KernelSource,
		CompilerPath:    location.CompilerPath,
		HostCompileArgs: compileArgs,
		IncludeDir:      b.cfg.HostIncludeDir,
		LibraryName:     b.cfg.GPULibraryName(),
	})
	if err != nil {
		return ExtensionSpec{}, err
	}

	depends := []string{b.cfg.GPU.KernelSource}
	depends = append(depends, b.cfg.GPU.Headers...)
	if cfgFile := b.configDependency(); cfgFile != "" {
		depends = append(depends, cfgFile)
	}

	return ExtensionSpec{
		ModuleName:       b.cfg.GPU.Module,
		SourceFiles:      append([]string(nil), b.cfg.GPU.Sources...),
		IncludeDirs:      uniqueStrings(b.cfg.IncludeDirs),
		LibraryDirs:      uniqueStrings([]string{lib.OutputDir, runtimeDir}),
		Libraries:        uniqueStrings([]string{lib.LibraryName, b.cfg.GPU.RuntimeLibrary}),
		ExtraCompileArgs: compileArgs,
		DependsOn:        uniqueStrings(depends),
	}, nil
}

// configDependency returns the config file path relative to the project,
// so editing it triggers a rebuild downstream.
func (b *GPUExtensionBuilder) configDependency() string {
	if b.cfg.ConfigFile == "" {
		return ""
	}
	if rel, err := filepath.Rel(b.cfg.ProjectDir, b.cfg.ConfigFile); err == nil {
		return filepath.ToSlash(rel)
	}
	return b.cfg.ConfigFile
}
