package nativeext

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/magefile/mage/mg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPlanner fails every request for which fail returns an error.
type scriptedPlanner struct {
	fail     func(req BuildRequest) error
	requests []BuildRequest
}

func (p *scriptedPlanner) PlanExtensions(ctx context.Context, req BuildRequest) ([]ExtensionSpec, error) {
	p.requests = append(p.requests, req)
	if err := p.fail(req); err != nil {
		return nil, err
	}
	specs := []ExtensionSpec{}
	if req.WantNativeExtension {
		specs = append(specs, ExtensionSpec{ModuleName: testNativeModule})
	}
	if req.WantGPUExtension {
		specs = append(specs, ExtensionSpec{ModuleName: testGPUModule})
	}
	return specs, nil
}

func gpuFailure(msg string) error {
	return &BuildFailure{Kind: GPUFailure, Err: errors.New(msg)}
}

func TestDowngrade(t *testing.T) {
	testCases := []struct {
		name     string
		req      BuildRequest
		err      error
		expected BuildRequest
		ok       bool
	}{
		{"gpu failure drops gpu", FullRequest(), gpuFailure("nvcc"), BuildRequest{WantNativeExtension: true}, true},
		{"native failure drops native", FullRequest(), &BuildFailure{Kind: NativeFailure, Err: errors.New("cc")}, BuildRequest{WantGPUExtension: true}, true},
		{"other failure drops native", BuildRequest{WantNativeExtension: true}, errors.New("disk full"), BuildRequest{}, true},
		{"gpu failure without gpu requested drops native", BuildRequest{WantNativeExtension: true}, gpuFailure("nvcc"), BuildRequest{}, true},
		{"gpu failure on gpu only drops gpu", BuildRequest{WantGPUExtension: true}, gpuFailure("needs native"), BuildRequest{}, true},
		{"other failure on gpu only is unrecoverable", BuildRequest{WantGPUExtension: true}, errors.New("boom"), BuildRequest{WantGPUExtension: true}, false},
		{"empty request is unrecoverable", BuildRequest{}, errors.New("boom"), BuildRequest{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := Downgrade(tc.req, tc.err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, next)
		})
	}
}

func TestRunFirstAttemptSucceeds(t *testing.T) {
	planner := &scriptedPlanner{fail: func(BuildRequest) error { return nil }}
	orchestrator := &BuildOrchestrator{Planner: planner}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "full", outcome.Stage)
	assert.Len(t, outcome.Extensions, 2)
	assert.Empty(t, outcome.Warnings)
}

func TestRunDropsGPUAfterGPUFailure(t *testing.T) {
	planner := &scriptedPlanner{fail: func(req BuildRequest) error {
		if req.WantGPUExtension {
			return gpuFailure("nvcc exploded")
		}
		return nil
	}}
	logger := &recordingLogger{}
	orchestrator := &BuildOrchestrator{Planner: planner, Logger: logger}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)

	assert.Equal(t, []BuildRequest{FullRequest(), FullRequest().WithoutGPU()}, planner.requests)
	assert.Equal(t, "native-only", outcome.Stage)
	assert.Equal(t, []string{"Could not compile cuda extensions."}, outcome.Warnings)
	assert.Equal(t, outcome.Warnings, logger.warnings)
	assert.Contains(t, logger.infos, "Exception occurred during setup, error building cuda module: nvcc exploded")
}

func TestRunFallsBackToPureBuild(t *testing.T) {
	planner := &scriptedPlanner{fail: func(req BuildRequest) error {
		if req.WantNativeExtension {
			return errors.New("compiler crashed")
		}
		return nil
	}}
	orchestrator := &BuildOrchestrator{Planner: planner}

	outcome, err := orchestrator.Run(context.Background(), BuildRequest{WantNativeExtension: true})
	require.NoError(t, err)

	assert.Equal(t, "pure-only", outcome.Stage)
	assert.NotNil(t, outcome.Extensions)
	assert.Empty(t, outcome.Extensions)
	assert.Equal(t, []string{
		"The C extension could not be compiled, native-dependent functionality will not be available.",
	}, outcome.Warnings)
}

func TestRunNeverExceedsThreeAttempts(t *testing.T) {
	planner := &scriptedPlanner{fail: func(req BuildRequest) error {
		if req.IsEmpty() {
			return errors.New("even the empty plan failed")
		}
		return gpuFailure("nope")
	}}
	orchestrator := &BuildOrchestrator{Planner: planner}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Len(t, planner.requests, 3)

	var unrecoverable *UnrecoverableBuildError
	require.True(t, errors.As(err, &unrecoverable))
	assert.Equal(t, 3, unrecoverable.Attempts)
	assert.Equal(t, BuildRequest{}, unrecoverable.Request)
	assert.Len(t, unrecoverable.Warnings, 2)
	assert.Equal(t, 1, mg.ExitStatus(err))
}

func TestRunUnrecoverableOtherFailure(t *testing.T) {
	planner := &scriptedPlanner{fail: func(BuildRequest) error { return errors.New("disk full") }}
	orchestrator := &BuildOrchestrator{Planner: planner}

	_, err := orchestrator.Run(context.Background(), FullRequest())

	var unrecoverable *UnrecoverableBuildError
	require.True(t, errors.As(err, &unrecoverable))
	assert.Equal(t, 2, unrecoverable.Attempts)
	assert.Equal(t, BuildRequest{WantGPUExtension: true}, unrecoverable.Request)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunCanceledContext(t *testing.T) {
	planner := &scriptedPlanner{fail: func(BuildRequest) error { return nil }}
	orchestrator := &BuildOrchestrator{Planner: planner}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orchestrator.Run(ctx, FullRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, planner.requests)
}

func TestRunSetsDeploymentTarget(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Platform = "darwin"
	cfg.Deployment = DeploymentConfig{InterpreterTarget: "10.6", SystemVersion: "10.15.7"}

	orchestrator := &BuildOrchestrator{
		Planner:   &scriptedPlanner{fail: func(BuildRequest) error { return nil }},
		Config:    cfg,
		LookupEnv: mapEnv(nil),
	}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MACOSX_DEPLOYMENT_TARGET": "10.9"}, outcome.Env)
}

// The scenarios below run the real planner with a fake nvcc.

func TestScenarioToolchainPresent(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t, "gcc")
	installFakeTool(t, &fakeTool{createOutput: true})

	orchestrator := &BuildOrchestrator{Planner: newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)

	require.Len(t, outcome.Extensions, 2)
	assert.Equal(t, testNativeModule, outcome.Extensions[0].ModuleName)
	assert.Equal(t, testGPUModule, outcome.Extensions[1].ModuleName)
	assert.Contains(t, outcome.Extensions[1].LibraryDirs, filepath.Join(home, "lib64"))
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestScenarioToolchainMissing(t *testing.T) {
	cfg := newTestConfig(t)
	stubLookPath(t, "gcc")
	tool := &fakeTool{}
	installFakeTool(t, tool)

	orchestrator := &BuildOrchestrator{Planner: newTestPlanner(t, cfg, map[string]string{"PATH": t.TempDir()})}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)

	require.Len(t, outcome.Extensions, 1)
	assert.Equal(t, testNativeModule, outcome.Extensions[0].ModuleName)
	assert.Equal(t, []string{"Could not compile cuda extensions."}, outcome.Warnings)
	assert.Equal(t, BuildRequest{WantNativeExtension: true}, outcome.Request)
	assert.Empty(t, tool.calls)
}

func TestScenarioNoHostCompiler(t *testing.T) {
	cfg := newTestConfig(t)
	home := makeCUDAHome(t, t.TempDir())
	stubLookPath(t)
	tool := &fakeTool{createOutput: true}
	installFakeTool(t, tool)

	orchestrator := &BuildOrchestrator{Planner: newTestPlanner(t, cfg, map[string]string{"CUDAHOME": home})}

	outcome, err := orchestrator.Run(context.Background(), FullRequest())
	require.NoError(t, err)

	assert.Empty(t, outcome.Extensions)
	assert.Equal(t, "pure-only", outcome.Stage)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []string{
		"The C extension could not be compiled, native-dependent functionality will not be available.",
		"Could not compile cuda extensions.",
	}, outcome.Warnings)
	assert.Empty(t, tool.calls)
}
