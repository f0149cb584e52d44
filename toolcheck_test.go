package nativeext

import (
	"testing"
)

func TestCheckRequiredToolsUsesAlternatives(t *testing.T) {
	stubLookPath(t, "clang")

	err := CheckRequiredTools([]ToolRequirement{
		{Name: "gcc", Alternatives: []string{"clang", "cc"}, Purpose: "C compiler"},
	})
	if err != nil {
		t.Fatalf("expected clang to satisfy the requirement, got %v", err)
	}
}

func TestCheckRequiredToolsSingleMissing(t *testing.T) {
	stubLookPath(t)

	err := CheckRequiredTools([]ToolRequirement{
		{Name: "gcc", Purpose: "C compiler"},
		{Name: "ninja", Optional: true},
	})
	if err == nil || err.Error() != "gcc (C compiler) not found in PATH" {
		t.Fatalf("expected single missing tool error, got %v", err)
	}
}

func TestCheckRequiredToolsMultipleMissing(t *testing.T) {
	stubLookPath(t)

	err := CheckRequiredTools([]ToolRequirement{
		{Name: "gcc", Purpose: "C compiler"},
		{Name: "nvcc"},
	})
	expected := "missing required tools: gcc (C compiler), nvcc"
	if err == nil || err.Error() != expected {
		t.Fatalf("expected %q, got %v", expected, err)
	}
}

func TestNativeBuilderPreflight(t *testing.T) {
	cfg := newTestConfig(t)
	builder := NewNativeExtensionBuilder(cfg)

	stubLookPath(t, "cl")
	if err := builder.CheckTools(); err != nil {
		t.Fatalf("expected cl to satisfy the preflight, got %v", err)
	}

	stubLookPath(t)
	err := builder.CheckTools()
	if ClassifyFailure(err) != NativeFailure {
		t.Fatalf("expected a native failure, got %v", err)
	}

	cfg.Native.Preflight = false
	if err := builder.CheckTools(); err != nil {
		t.Fatalf("expected no check with preflight disabled, got %v", err)
	}
}
