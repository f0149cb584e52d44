package nativeext

import "context"

// ExtensionBuilder produces the spec of one optional extension module.
//
// Each builder serves one feature of the BuildRequest and must implement
// these methods to be registered with an ExtensionPlanner.
//
// # Builder Lifecycle
//
//  1. Wanted() - Planner checks whether the request asks for this feature
//  2. CheckTools() - Optional, when the builder also implements ToolChecker
//  3. Plan() - Planner asks for the spec, compiling prerequisites if needed
//
// # Example Implementation
//
//	type DocsBuilder struct{}
//
//	func (b *DocsBuilder) Name() string { return "docs" }
//
//	func (b *DocsBuilder) FailureKind() FailureKind { return NativeFailure }
//
//	func (b *DocsBuilder) Wanted(req BuildRequest) bool { return req.WantNativeExtension }
//
//	func (b *DocsBuilder) Plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error) {
//	    return ExtensionSpec{ModuleName: "pkg._docs", SourceFiles: []string{"docs.c"}}, nil
//	}
//
// # Failure Tagging
//
// Errors returned from Plan or CheckTools should be a *BuildFailure. An
// untagged error is tagged by the planner with FailureKind(), so the
// orchestrator always knows which feature to drop.
type ExtensionBuilder interface {
	// Name returns the human-readable name of this builder, used in logs.
	Name() string

	// FailureKind is the kind reported when this builder fails.
	FailureKind() FailureKind

	// Wanted reports whether req asks for this builder's extension.
	Wanted(req BuildRequest) bool

	// Plan returns the extension spec. It may run compilers. req is the
	// whole request of the attempt, for builders that depend on other features.
	Plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error)
}

// nativeCompileArgs returns the platform-specific extra compile flags of the
// compiled extension: long long support on z/OS, the dynamic runtime on Windows.
func nativeCompileArgs(platform string) []string {
	var args []string
	switch platform {
	case platformZOS:
		args = append(args, "-qlonglong")
	case platformWindows:
		args = append(args, "/MD")
	}
	return args
}
