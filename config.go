package nativeext

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Platform constants
const (
	platformWindows = "windows"
	platformDarwin  = "darwin"
	platformZOS     = "zos"
)

// Config file names searched by FindConfigFile, in priority order.
var configFileNames = []string{"nativeext.toml", "nativeext.yaml", "nativeext.yml"}

// Config describes the project being built and how to reach its toolchains.
//
// A Config is usually read from nativeext.toml (or nativeext.yaml) at the
// project root:
//
//	build_dir = "build"
//	include_dirs = ["/usr/lib/python3/dist-packages/numpy/core/include"]
//	host_include_dir = "/usr/include/python3.12"
//
//	[native]
//	module = "shap._cext"
//	sources = ["shap/cext/_cext.cc"]
//
//	[gpu]
//	module = "shap._cext_gpu"
//	sources = ["shap/cext/_cext_gpu.cc"]
//	kernel_source = "shap/cext/_cext_gpu.cu"
//	headers = ["shap/cext/gpu_treeshap.h"]
//
// Paths are relative to ProjectDir unless absolute.
type Config struct {
	// ProjectDir is the directory the build runs in. Not read from the file.
	ProjectDir string `toml:"-" yaml:"-"`
	// ConfigFile is the path the config was loaded from, if any.
	ConfigFile string `toml:"-" yaml:"-"`

	// Platform overrides runtime.GOOS for flag selection.
	Platform string `toml:"platform" yaml:"platform"`
	// BuildDir receives the compiled GPU static library.
	BuildDir string `toml:"build_dir" yaml:"build_dir"`
	// IncludeDirs are added to every extension spec.
	IncludeDirs []string `toml:"include_dirs" yaml:"include_dirs"`
	// HostIncludeDir is the interpreter's native-extension header directory,
	// passed to the GPU compiler with -I.
	HostIncludeDir string `toml:"host_include_dir" yaml:"host_include_dir"`

	Native     NativeConfig     `toml:"native" yaml:"native"`
	GPU        GPUConfig        `toml:"gpu" yaml:"gpu"`
	Toolchain  ToolchainConfig  `toml:"toolchain" yaml:"toolchain"`
	Deployment DeploymentConfig `toml:"deployment" yaml:"deployment"`
}

// NativeConfig describes the always-available compiled extension.
type NativeConfig struct {
	Module  string   `toml:"module" yaml:"module"`
	Sources []string `toml:"sources" yaml:"sources"`
	// Preflight checks that a host C/C++ compiler is on PATH before planning.
	Preflight bool `toml:"preflight" yaml:"preflight"`
}

// GPUConfig describes the optional GPU-accelerated extension.
type GPUConfig struct {
	Module string `toml:"module" yaml:"module"`
	// Sources are the host-side glue sources of the extension module.
	Sources []string `toml:"sources" yaml:"sources"`
	// KernelSource is the .cu file compiled into a static library.
	KernelSource string   `toml:"kernel_source" yaml:"kernel_source"`
	Headers      []string `toml:"headers" yaml:"headers"`
	// LibraryName is the static library base name. Derived from Module when empty.
	LibraryName string `toml:"library_name" yaml:"library_name"`
	// RuntimeLibrary is the GPU runtime linked into the extension.
	RuntimeLibrary string `toml:"runtime_library" yaml:"runtime_library"`
}

// ToolchainConfig controls GPU toolchain discovery and the compiler invocation.
type ToolchainConfig struct {
	// HomeEnv lists the environment variables naming the toolchain home, first wins.
	HomeEnv []string `toml:"home_env" yaml:"home_env"`
	// FallbackHome is used when the declared home looks incomplete.
	FallbackHome string `toml:"fallback_home" yaml:"fallback_home"`
	// ArchFlags select the GPU generations the library is built for.
	ArchFlags []string `toml:"arch_flags" yaml:"arch_flags"`
	// Std is the C++ language standard.
	Std string `toml:"std" yaml:"std"`
	// ExtendedFlags enable the extended lambda/constexpr syntax.
	ExtendedFlags            []string `toml:"extended_flags" yaml:"extended_flags"`
	AllowUnsupportedCompiler bool     `toml:"allow_unsupported_compiler" yaml:"allow_unsupported_compiler"`
	// CompileTimeout bounds the compiler run, e.g. "15m". Empty means no timeout.
	CompileTimeout string `toml:"compile_timeout" yaml:"compile_timeout"`
}

// DeploymentConfig feeds the macOS deployment-target guard.
type DeploymentConfig struct {
	// InterpreterTarget is the deployment target the interpreter was built for.
	InterpreterTarget string `toml:"interpreter_target" yaml:"interpreter_target"`
	// SystemVersion overrides the detected macOS version.
	SystemVersion string `toml:"system_version" yaml:"system_version"`
}

// DefaultConfig returns a configuration with the toolchain defaults filled in.
// Module names and sources are left for the project to provide.
func DefaultConfig() *Config {
	return &Config{
		ProjectDir: ".",
		Platform:   runtime.GOOS,
		BuildDir:   "build",
		Native: NativeConfig{
			Preflight: true,
		},
		GPU: GPUConfig{
			RuntimeLibrary: "cudart",
		},
		Toolchain: ToolchainConfig{
			HomeEnv:      []string{"CUDAHOME", "CUDA_PATH"},
			FallbackHome: "/usr/local/cuda",
			ArchFlags: []string{
				"-arch=sm_37",
				"-gencode=arch=compute_37,code=sm_37",
				"-gencode=arch=compute_70,code=sm_70",
				"-gencode=arch=compute_75,code=sm_75",
				"-gencode=arch=compute_75,code=compute_75",
			},
			Std:                      "c++14",
			ExtendedFlags:            []string{"--expt-extended-lambda", "--expt-relaxed-constexpr"},
			AllowUnsupportedCompiler: true,
		},
	}
}

// FindConfigFile looks for a config file in dir.
// Returns an empty string if none exists (not an error).
func FindConfigFile(dir string) string {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// LoadConfig reads a TOML or YAML config file on top of DefaultConfig.
//
// The format is chosen by extension (.toml, .yaml, .yml). The project
// directory defaults to the directory containing the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	cfg.ConfigFile = path
	cfg.ProjectDir = filepath.Dir(path)
	if cfg.Platform == "" {
		cfg.Platform = runtime.GOOS
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a build.
//
// The native extension is mandatory. The GPU section is optional: a project
// without one simply has its GPU request downgraded at build time.
func (c *Config) Validate() error {
	var problems []string

	if c.Native.Module == "" {
		problems = append(problems, "native.module is required")
	}
	if len(c.Native.Sources) == 0 {
		problems = append(problems, "native.sources is required")
	}
	for _, src := range c.Native.Sources {
		if !MatchesExtension(src, ".c", ".cc", ".cpp", ".cxx") {
			problems = append(problems, fmt.Sprintf("native source %s is not a C/C++ file", src))
		}
	}

	if c.GPU.Module != "" {
		if c.GPU.KernelSource == "" {
			problems = append(problems, "gpu.kernel_source is required when gpu.module is set")
		} else if !MatchesExtension(c.GPU.KernelSource, ".cu") {
			problems = append(problems, fmt.Sprintf("gpu kernel source %s is not a .cu file", c.GPU.KernelSource))
		}
		if len(c.GPU.Sources) == 0 {
			problems = append(problems, "gpu.sources is required when gpu.module is set")
		}
	}

	if c.BuildDir == "" {
		problems = append(problems, "build_dir must not be empty")
	}
	if _, err := c.compileTimeout(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// GPULibraryName returns the static library base name for the GPU module:
// the configured name, or the last dotted segment of the module name.
func (c *Config) GPULibraryName() string {
	if c.GPU.LibraryName != "" {
		return c.GPU.LibraryName
	}
	name := c.GPU.Module
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (c *Config) compileTimeout() (time.Duration, error) {
	if c.Toolchain.CompileTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Toolchain.CompileTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid toolchain.compile_timeout %q: %w", c.Toolchain.CompileTimeout, err)
	}
	return d, nil
}

func (c *Config) platform() string {
	if c.Platform != "" {
		return c.Platform
	}
	return runtime.GOOS
}
