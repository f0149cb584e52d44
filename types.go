package nativeext

import (
	"fmt"
	"path/filepath"
)

// BuildRequest selects which optional extensions an attempt should produce.
//
// A request is a value: the orchestrator never mutates one in place. Each
// downgrade produces a new copy with one more feature switched off, so the
// flags only ever move from true to false within a run.
//
//   - WantNativeExtension: build the always-available compiled extension
//   - WantGPUExtension: compile and link the GPU-accelerated extension
type BuildRequest struct {
	WantNativeExtension bool `json:"want_native" yaml:"want_native" toml:"want_native"`
	WantGPUExtension    bool `json:"want_gpu" yaml:"want_gpu" toml:"want_gpu"`
}

// FullRequest returns the default request with every feature enabled.
func FullRequest() BuildRequest {
	return BuildRequest{WantNativeExtension: true, WantGPUExtension: true}
}

// WithoutGPU returns a copy of the request with the GPU extension disabled.
func (r BuildRequest) WithoutGPU() BuildRequest {
	r.WantGPUExtension = false
	return r
}

// WithoutNative returns a copy of the request with the native extension disabled.
func (r BuildRequest) WithoutNative() BuildRequest {
	r.WantNativeExtension = false
	return r
}

// Stage reports the build stage this request corresponds to.
func (r BuildRequest) Stage() BuildStage {
	switch {
	case r.WantGPUExtension:
		return StageFull
	case r.WantNativeExtension:
		return StageNativeOnly
	default:
		return StagePureOnly
	}
}

// IsEmpty reports whether the request asks for no compiled extension at all.
func (r BuildRequest) IsEmpty() bool {
	return !r.WantNativeExtension && !r.WantGPUExtension
}

func (r BuildRequest) String() string {
	return fmt.Sprintf("{native=%t gpu=%t}", r.WantNativeExtension, r.WantGPUExtension)
}

// BuildStage names a point on the downgrade path.
type BuildStage int

const (
	// StageFull builds the GPU extension (and the native one when requested).
	StageFull BuildStage = iota
	// StageNativeOnly builds only the compiled extension.
	StageNativeOnly
	// StagePureOnly builds nothing; the package ships its pure-language code.
	StagePureOnly
)

func (s BuildStage) String() string {
	switch s {
	case StageFull:
		return "full"
	case StageNativeOnly:
		return "native-only"
	case StagePureOnly:
		return "pure-only"
	default:
		return fmt.Sprintf("BuildStage(%d)", int(s))
	}
}

// ExtensionSpec is a declarative description of one native module awaiting
// compilation and linking by the downstream packaging step.
//
// Specs are built once by an ExtensionBuilder and never modified afterwards.
// Slices keep their order: SourceFiles and ExtraCompileArgs are positional,
// the remaining lists are sets whose order is kept stable for reproducible
// build logs.
type ExtensionSpec struct {
	ModuleName       string   `json:"module_name" yaml:"module_name" toml:"module_name"`
	SourceFiles      []string `json:"source_files" yaml:"source_files" toml:"source_files"`
	IncludeDirs      []string `json:"include_dirs,omitempty" yaml:"include_dirs,omitempty" toml:"include_dirs,omitempty"`
	LibraryDirs      []string `json:"library_dirs,omitempty" yaml:"library_dirs,omitempty" toml:"library_dirs,omitempty"`
	Libraries        []string `json:"libraries,omitempty" yaml:"libraries,omitempty" toml:"libraries,omitempty"`
	ExtraCompileArgs []string `json:"extra_compile_args,omitempty" yaml:"extra_compile_args,omitempty" toml:"extra_compile_args,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`
}

// BuildOutcome is the result of a successful orchestrator run.
//
// A run that cannot produce even the empty plan returns an
// *UnrecoverableBuildError instead, so an outcome always describes a usable
// build. Extensions may be empty: that is the pure-language build.
type BuildOutcome struct {
	Request    BuildRequest      `json:"request" yaml:"request" toml:"request"`
	Stage      string            `json:"stage" yaml:"stage" toml:"stage"`
	Extensions []ExtensionSpec   `json:"extensions" yaml:"extensions" toml:"extensions"`
	Warnings   []string          `json:"warnings,omitempty" yaml:"warnings,omitempty" toml:"warnings,omitempty"`
	Attempts   int               `json:"attempts" yaml:"attempts" toml:"attempts"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
}

// ToolchainLocation describes a GPU toolchain installation found on the host.
type ToolchainLocation struct {
	HomeDir      string // Root of the installation (e.g. /usr/local/cuda)
	CompilerPath string // <HomeDir>/bin/nvcc
	Source       string // Where HomeDir came from: CUDAHOME, CUDA_PATH, PATH or fallback

	// CompilerFound is false when even the fallback home had no compiler.
	// The location is still returned as a best guess.
	CompilerFound bool
}

// IncludeDir returns the toolchain's header directory.
func (l *ToolchainLocation) IncludeDir() string {
	return filepath.Join(l.HomeDir, "include")
}
