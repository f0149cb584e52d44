package nativeext

import (
	"context"
	"fmt"
	"os"
)

// maxAttempts is the full downgrade path: full, native-only, pure-only.
const maxAttempts = 3

// Planner produces the extension specs for one attempt.
// *ExtensionPlanner is the production implementation.
type Planner interface {
	PlanExtensions(ctx context.Context, req BuildRequest) ([]ExtensionSpec, error)
}

// BuildOrchestrator drives the probe-build-degrade pass.
//
// # State Machine
//
//	{gpu=T,native=T} → {gpu=F,native=T} → {gpu=F,native=F} → failure
//
// Each attempt plans with an immutable BuildRequest. On failure the next
// request is derived from the failure's kind, evaluated in order:
//  1. GPU failure: drop the GPU extension
//  2. Native extension still requested: drop it
//  3. Otherwise: *UnrecoverableBuildError
//
// Every transition drops a feature, so a run makes at most three attempts.
// The empty request never runs a compiler, which makes the pure-language
// build the guaranteed last stop.
type BuildOrchestrator struct {
	Planner Planner
	// Config enables the deployment-target guard. Optional.
	Config *Config
	Logger Logger
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// NewBuildOrchestrator creates an orchestrator with the standard planner for cfg.
func NewBuildOrchestrator(cfg *Config, logger Logger) (*BuildOrchestrator, error) {
	planner, err := NewExtensionPlanner(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &BuildOrchestrator{
		Planner: planner,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

// Run executes attempts until one succeeds or no feature is left to drop.
//
// Warnings raised along the way are logged and kept in the outcome. A
// canceled context stops the loop with an *UnrecoverableBuildError wrapping
// the context error.
func (o *BuildOrchestrator) Run(ctx context.Context, req BuildRequest) (*BuildOutcome, error) {
	logger := loggerOrNop(o.Logger)
	var warnings []string

	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		logger.Warn("%s", msg)
	}

	env := o.deploymentEnv(ctx, warn)

	current := req
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &UnrecoverableBuildError{Request: current, Attempts: attempt - 1, Warnings: warnings, Err: ctxErr}
		}

		logger.Debug("Attempt %d: stage %s, request %s", attempt, current.Stage(), current)

		specs, err := o.Planner.PlanExtensions(ctx, current)
		if err == nil {
			return &BuildOutcome{
				Request:    current,
				Stage:      current.Stage().String(),
				Extensions: specs,
				Warnings:   warnings,
				Attempts:   attempt,
				Env:        env,
			}, nil
		}

		logger.Info("Exception occurred during setup, %v", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &UnrecoverableBuildError{Request: current, Attempts: attempt, Warnings: warnings, Err: err}
		}

		next, ok := Downgrade(current, err)
		if !ok {
			return nil, &UnrecoverableBuildError{Request: current, Attempts: attempt, Warnings: warnings, Err: err}
		}

		if next.WantNativeExtension == current.WantNativeExtension {
			warn("Could not compile cuda extensions.")
		} else {
			warn("The C extension could not be compiled, native-dependent functionality will not be available.")
		}
		current = next
	}

	return nil, &UnrecoverableBuildError{Request: current, Attempts: maxAttempts, Warnings: warnings,
		Err: fmt.Errorf("no successful attempt within %d tries", maxAttempts)}
}

// Downgrade returns the request for the attempt after req failed with err,
// or false when there is nothing left to drop.
func Downgrade(req BuildRequest, err error) (BuildRequest, bool) {
	switch {
	case ClassifyFailure(err) == GPUFailure && req.WantGPUExtension:
		return req.WithoutGPU(), true
	case req.WantNativeExtension:
		return req.WithoutNative(), true
	default:
		return req, false
	}
}

func (o *BuildOrchestrator) deploymentEnv(ctx context.Context, warn func(string, ...interface{})) map[string]string {
	if o.Config == nil {
		return nil
	}
	lookupEnv := o.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	env, err := DeploymentTargetEnv(ctx, o.Config, lookupEnv)
	if err != nil {
		warn("Could not check the macOS deployment target: %v", err)
		return nil
	}
	for key, value := range env {
		loggerOrNop(o.Logger).Info("Setting %s=%s", key, value)
	}
	return env
}
