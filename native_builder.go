package nativeext

import "context"

// NativeExtensionBuilder emits the spec of the always-available compiled
// extension. It never runs a compiler itself; the downstream packaging step
// compiles the sources. With preflight enabled it checks that a host C/C++
// compiler exists so a broken host is caught here and downgraded.
type NativeExtensionBuilder struct {
	cfg *Config
}

// NewNativeExtensionBuilder creates a builder for cfg.Native.
func NewNativeExtensionBuilder(cfg *Config) *NativeExtensionBuilder {
	return &NativeExtensionBuilder{cfg: cfg}
}

// Name returns the builder name
func (b *NativeExtensionBuilder) Name() string {
	return "native"
}

// FailureKind returns NativeFailure
func (b *NativeExtensionBuilder) FailureKind() FailureKind {
	return NativeFailure
}

// Wanted checks the native flag of the request
func (b *NativeExtensionBuilder) Wanted(req BuildRequest) bool {
	return req.WantNativeExtension
}

// RequiredTools returns the host compiler requirement
func (b *NativeExtensionBuilder) RequiredTools() []ToolRequirement {
	if !b.cfg.Native.Preflight {
		return nil
	}
	return []ToolRequirement{
		{
			Name:         "gcc",
			Alternatives: []string{"clang", "cc", "c++", "cl"},
			Purpose:      "C/C++ compiler for native extensions",
		},
	}
}

// CheckTools verifies that a host compiler is available
func (b *NativeExtensionBuilder) CheckTools() error {
	if err := CheckRequiredTools(b.RequiredTools()); err != nil {
		return &BuildFailure{Kind: NativeFailure, Module: b.cfg.Native.Module, Err: err}
	}
	return nil
}

// Plan returns the compiled extension spec
func (b *NativeExtensionBuilder) Plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error) {
	if err := ctx.Err(); err != nil {
		return ExtensionSpec{}, err
	}

	return ExtensionSpec{
		ModuleName:       b.cfg.Native.Module,
		SourceFiles:      append([]string(nil), b.cfg.Native.Sources...),
		IncludeDirs:      uniqueStrings(b.cfg.IncludeDirs),
		ExtraCompileArgs: nativeCompileArgs(b.cfg.platform()),
	}, nil
}
