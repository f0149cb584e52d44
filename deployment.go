package nativeext

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-version"
)

const deploymentTargetEnv = "MACOSX_DEPLOYMENT_TARGET"

// Extensions must target at least this macOS release once the build host is
// on it, whatever older target the interpreter was built for.
var minDeploymentTarget = version.Must(version.NewVersion("10.9"))

// DeploymentTargetEnv returns the environment the downstream compiler needs
// for the macOS deployment target, or nil when nothing has to change.
//
// On darwin, when MACOSX_DEPLOYMENT_TARGET is unset, the interpreter targets
// a release older than 10.9 and the host runs 10.9 or newer, the target is
// raised to 10.9. An explicit MACOSX_DEPLOYMENT_TARGET always wins.
//
// The host version comes from cfg.Deployment.SystemVersion, or from
// `sw_vers -productVersion` when that is empty.
func DeploymentTargetEnv(ctx context.Context, cfg *Config, lookupEnv func(string) (string, bool)) (map[string]string, error) {
	if cfg.platform() != platformDarwin {
		return nil, nil
	}
	if _, ok := lookupEnv(deploymentTargetEnv); ok {
		return nil, nil
	}
	if cfg.Deployment.InterpreterTarget == "" {
		return nil, nil
	}

	interpreter, err := version.NewVersion(cfg.Deployment.InterpreterTarget)
	if err != nil {
		return nil, fmt.Errorf("parsing interpreter deployment target: %w", err)
	}

	systemVersion := cfg.Deployment.SystemVersion
	if systemVersion == "" {
		systemVersion, err = commandOutput(ctx, "sw_vers", "-productVersion")
		if err != nil {
			return nil, fmt.Errorf("detecting macOS version: %w", err)
		}
	}
	system, err := version.NewVersion(systemVersion)
	if err != nil {
		return nil, fmt.Errorf("parsing macOS version %q: %w", systemVersion, err)
	}

	if interpreter.LessThan(minDeploymentTarget) && system.GreaterThanOrEqual(minDeploymentTarget) {
		return map[string]string{deploymentTargetEnv: minDeploymentTarget.Original()}, nil
	}
	return nil, nil
}
