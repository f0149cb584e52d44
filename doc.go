// Package nativeext plans the native extensions of a package that ships a
// pure-language implementation, a compiled extension, and an optional
// GPU-accelerated extension.
//
// It locates the GPU toolchain, compiles the GPU kernel library when the
// toolchain is present, and degrades instead of failing. Each failed attempt
// drops one feature; the pure-language build is the last stop.
//
// # Basic Usage
//
//	cfg, err := nativeext.LoadConfig("nativeext.toml")
//	if err != nil {
//	    return err
//	}
//
//	orchestrator, err := nativeext.NewBuildOrchestrator(cfg, output.DefaultLogger)
//	if err != nil {
//	    return err
//	}
//
//	outcome, err := orchestrator.Run(ctx, nativeext.FullRequest())
//	// outcome.Extensions goes to the packaging step
//
// # Architecture
//
//	BuildOrchestrator (downgrade loop)
//	└── ExtensionPlanner
//	    ├── NativeExtensionBuilder (compiled extension spec)
//	    └── GPUExtensionBuilder
//	        ├── ToolchainLocator (CUDAHOME, CUDA_PATH, PATH, /usr/local/cuda)
//	        └── GPUCompiler (nvcc -lib)
//
// Failures are tagged with a FailureKind by the builder that detects them,
// so the orchestrator never parses error text to pick what to drop.
//
// # Platform Support
//
// Linux and macOS are the primary targets. Windows uses nvcc.exe, .lib
// static libraries, lib/x64 runtime libraries and /MD. z/OS gets -qlonglong.
package nativeext
