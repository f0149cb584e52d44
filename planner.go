package nativeext

import (
	"context"
	"fmt"
)

// ExtensionPlanner turns a BuildRequest into the list of extension specs
// handed to the downstream packaging step.
//
// The planner maintains an ordered registry of ExtensionBuilders. For each
// request it:
//  1. Checks for context cancellation
//  2. Skips builders whose feature the request does not want
//  3. Runs the builder's tool check when it implements ToolChecker
//  4. Collects the builder's spec
//
// The first failure aborts the attempt and no partial list is returned.
//
// # Usage
//
//	planner, err := nativeext.NewExtensionPlanner(cfg, logger)
//	specs, err := planner.PlanExtensions(ctx, nativeext.FullRequest())
//
// Or start empty and register custom builders:
//
//	planner := &nativeext.ExtensionPlanner{}
//	planner.Register(&MyBuilder{})
//
// # Ordering
//
// Specs come out in registration order. NewExtensionPlanner registers the
// native builder before the GPU builder, which keeps build logs stable.
//
// # Thread Safety
//
// ExtensionPlanner is NOT thread-safe for registration, and the GPU builder
// writes to a shared build directory. Run one planner per working directory.
type ExtensionPlanner struct {
	builders []ExtensionBuilder
	Logger   Logger
}

// NewExtensionPlanner creates a planner with the native and GPU builders
// registered for cfg.
func NewExtensionPlanner(cfg *Config, logger Logger) (*ExtensionPlanner, error) {
	compiler, err := NewGPUCompiler(cfg, logger)
	if err != nil {
		return nil, err
	}
	locator := NewToolchainLocator(cfg, logger)

	planner := &ExtensionPlanner{Logger: logger}
	planner.Register(NewNativeExtensionBuilder(cfg))
	planner.Register(NewGPUExtensionBuilder(cfg, locator, compiler))

	return planner, nil
}

// Register adds a builder. Builders run in the order they are registered.
//
// Not thread-safe. Register all builders before use.
func (p *ExtensionPlanner) Register(builder ExtensionBuilder) {
	p.builders = append(p.builders, builder)
}

// ListBuilders returns a copy of all registered builders.
func (p *ExtensionPlanner) ListBuilders() []ExtensionBuilder {
	return append([]ExtensionBuilder{}, p.builders...)
}

// PlanExtensions returns the specs for every feature req wants.
//
// An empty request yields an empty, non-nil list without touching any
// builder, so the pure-language plan cannot fail.
func (p *ExtensionPlanner) PlanExtensions(ctx context.Context, req BuildRequest) ([]ExtensionSpec, error) {
	logger := loggerOrNop(p.Logger)
	specs := []ExtensionSpec{}

	for _, builder := range p.builders {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !builder.Wanted(req) {
			continue
		}

		if checker, ok := builder.(ToolChecker); ok {
			if err := checker.CheckTools(); err != nil {
				return nil, tagFailure(builder, err)
			}
		}

		logger.Debug("Planning %s extension", builder.Name())

		spec, err := builder.Plan(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s extension: %w", builder.Name(), ctxErr)
			}
			return nil, tagFailure(builder, err)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

func tagFailure(builder ExtensionBuilder, err error) error {
	if ClassifyFailure(err) != OtherFailure {
		return err
	}
	return &BuildFailure{Kind: builder.FailureKind(), Err: err}
}
