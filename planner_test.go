package nativeext

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuilder struct {
	name string
	kind FailureKind
	err  error
}

func (b *stubBuilder) Name() string                 { return b.name }
func (b *stubBuilder) FailureKind() FailureKind     { return b.kind }
func (b *stubBuilder) Wanted(req BuildRequest) bool { return req.WantNativeExtension }

func (b *stubBuilder) Plan(ctx context.Context, req BuildRequest) (ExtensionSpec, error) {
	if b.err != nil {
		return ExtensionSpec{}, b.err
	}
	return ExtensionSpec{ModuleName: b.name}, nil
}

func TestPlanExtensionsFullRequest(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	tool := &fakeTool{createOutput: true}
	installFakeTool(t, tool)

	planner := newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})

	specs, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.NoError(t, err)
	require.Len(t, specs, 2)

	native := specs[0]
	assert.Equal(t, testNativeModule, native.ModuleName)
	assert.Equal(t, []string{"shap/cext/_cext.cc"}, native.SourceFiles)
	assert.Equal(t, []string{"/opt/numpy/core/include"}, native.IncludeDirs)
	assert.Empty(t, native.ExtraCompileArgs)

	gpu := specs[1]
	assert.Equal(t, testGPUModule, gpu.ModuleName)
	assert.Equal(t, []string{"shap/cext/_cext_gpu.cc"}, gpu.SourceFiles)
	assert.Equal(t, []string{"build", filepath.Join(home, "lib64")}, gpu.LibraryDirs)
	assert.Equal(t, []string{"_cext_gpu", "cudart"}, gpu.Libraries)
	assert.Equal(t, []string{"-fPIC"}, gpu.ExtraCompileArgs)
	assert.Equal(t, []string{testKernelSource, "shap/cext/gpu_treeshap.h"}, gpu.DependsOn)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, filepath.Join(home, "bin", "nvcc"), tool.calls[0].name)
}

func TestPlanExtensionsIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	installFakeTool(t, &fakeTool{createOutput: true})

	planner := newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})

	first, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.NoError(t, err)
	second, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPlanExtensionsEmptyRequest(t *testing.T) {
	cfg := newTestConfig(t)
	stubLookPath(t)
	tool := &fakeTool{}
	installFakeTool(t, tool)

	planner := newTestPlanner(t, cfg, nil)

	specs, err := planner.PlanExtensions(context.Background(), BuildRequest{})
	require.NoError(t, err)
	assert.NotNil(t, specs)
	assert.Empty(t, specs)
	assert.Empty(t, tool.calls)
}

func TestPlanExtensionsToolchainNotFound(t *testing.T) {
	cfg := newTestConfig(t)
	stubLookPath(t, "gcc")
	tool := &fakeTool{}
	installFakeTool(t, tool)

	planner := newTestPlanner(t, cfg, nil)

	specs, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.Error(t, err)
	assert.Nil(t, specs, "no partial list on failure")
	assert.ErrorIs(t, err, ErrToolchainNotFound)
	assert.Equal(t, GPUFailure, ClassifyFailure(err))
	assert.Contains(t, err.Error(), "error building cuda module")
	assert.Empty(t, tool.calls)
}

func TestPlanExtensionsCompilationFailure(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	installFakeTool(t, &fakeTool{exitCode: 1, output: "fatal error"})

	planner := newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})

	_, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.Error(t, err)
	assert.Equal(t, GPUFailure, ClassifyFailure(err))

	var compileErr *CompilationError
	assert.True(t, errors.As(err, &compileErr))
}

func TestPlanExtensionsGPURequiresNative(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	tool := &fakeTool{createOutput: true}
	installFakeTool(t, tool)

	planner := newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})

	_, err := planner.PlanExtensions(context.Background(), FullRequest().WithoutNative())
	require.Error(t, err)
	assert.Equal(t, GPUFailure, ClassifyFailure(err))
	assert.Empty(t, tool.calls)
}

func TestPlanExtensionsNativePreflightFailure(t *testing.T) {
	cfg := newTestConfig(t)
	stubLookPath(t)

	planner := newTestPlanner(t, cfg, nil)

	_, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.Error(t, err)
	assert.Equal(t, NativeFailure, ClassifyFailure(err))
	assert.Contains(t, err.Error(), testNativeModule)
}

func TestPlanExtensionsNoGPUModule(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.GPU = GPUConfig{}
	stubLookPath(t, "gcc")

	planner := newTestPlanner(t, cfg, nil)

	_, err := planner.PlanExtensions(context.Background(), FullRequest())
	assert.Equal(t, GPUFailure, ClassifyFailure(err))

	specs, err := planner.PlanExtensions(context.Background(), FullRequest().WithoutGPU())
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func TestPlanExtensionsTagsUntaggedErrors(t *testing.T) {
	planner := &ExtensionPlanner{}
	planner.Register(&stubBuilder{name: "docs", kind: NativeFailure, err: errors.New("boom")})

	_, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.Error(t, err)
	assert.Equal(t, NativeFailure, ClassifyFailure(err))
}

func TestPlanExtensionsCanceled(t *testing.T) {
	planner := &ExtensionPlanner{}
	planner.Register(&stubBuilder{name: "docs"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := planner.PlanExtensions(ctx, FullRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OtherFailure, ClassifyFailure(err))
}

func TestRegisterKeepsOrder(t *testing.T) {
	planner, err := NewExtensionPlanner(newTestConfig(t), nil)
	require.NoError(t, err)

	builders := planner.ListBuilders()
	require.Len(t, builders, 2)
	assert.Equal(t, "native", builders[0].Name())
	assert.Equal(t, "cuda", builders[1].Name())

	planner.Register(&stubBuilder{name: "docs"})
	assert.Len(t, builders, 2, "ListBuilders returns a copy")
	assert.Len(t, planner.ListBuilders(), 3)
}

func TestGPUSpecDependsOnConfigFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ConfigFile = filepath.Join(cfg.ProjectDir, "nativeext.toml")
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	installFakeTool(t, &fakeTool{createOutput: true})

	planner := newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})

	specs, err := planner.PlanExtensions(context.Background(), FullRequest())
	require.NoError(t, err)
	assert.Contains(t, specs[1].DependsOn, "nativeext.toml")
}
