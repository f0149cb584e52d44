package cli

import (
	"errors"

	"github.com/spf13/cobra"

	nativeext "github.com/contriboss/native-extension-go"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report the toolchains found on this host",
	Long: `Probe runs toolchain discovery without compiling anything.

It reports where the GPU toolchain home was taken from (CUDAHOME, CUDA_PATH,
PATH or the fallback), whether nvcc exists there, and whether a host C/C++
compiler is available for the compiled extension.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	native := nativeext.NewNativeExtensionBuilder(cfg)
	if err := nativeext.CheckRequiredTools(native.RequiredTools()); err != nil {
		logger.Warn("%v", err)
	} else {
		logger.Success("Host C/C++ compiler available")
	}

	locator := nativeext.NewToolchainLocator(cfg, logger)
	location, err := locator.ResolveGPUToolchain()
	if errors.Is(err, nativeext.ErrToolchainNotFound) {
		logger.Warn("%v", err)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Bold("GPU toolchain")
	logger.Info("  home:     %s (from %s)", location.HomeDir, location.Source)
	logger.Info("  compiler: %s", location.CompilerPath)
	logger.Info("  include:  %s", location.IncludeDir())
	logger.Info("  runtime:  %s", locator.RuntimeLibraryDir(location.HomeDir))

	if location.CompilerFound {
		logger.Success("nvcc found")
	} else {
		logger.Warn("nvcc not found at %s, GPU extension will be dropped", location.CompilerPath)
	}
	return nil
}
