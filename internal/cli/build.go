package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/magefile/mage/mg"
	"github.com/spf13/cobra"

	nativeext "github.com/contriboss/native-extension-go"
)

var (
	buildNoGPU    bool
	buildNoNative bool
	buildFormat   string
	buildManifest string
	buildTimeout  string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Plan the native extensions, degrading on failure",
	Long: `Build compiles the GPU kernel library when the toolchain is present and
prints the extension specs for the packaging step.

Examples:
  nativeext build
  nativeext build --no-gpu
  nativeext build --format yaml --manifest build/extensions.yaml
  nativeext build --timeout 20m`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildNoGPU, "no-gpu", false, "do not attempt the GPU extension")
	buildCmd.Flags().BoolVar(&buildNoNative, "no-native", false, "do not attempt the compiled extension")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", formatJSON, "output format: json, yaml or toml")
	buildCmd.Flags().StringVarP(&buildManifest, "manifest", "o", "", "write the outcome to this file instead of stdout")
	buildCmd.Flags().StringVar(&buildTimeout, "timeout", "", "GPU compiler timeout (e.g. 15m), overrides the config")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if buildTimeout != "" {
		cfg.Toolchain.CompileTimeout = buildTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if buildManifest == "" {
		logger.SetOutput(cmd.ErrOrStderr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orchestrator, err := nativeext.NewBuildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	req := nativeext.BuildRequest{
		WantNativeExtension: !buildNoNative,
		WantGPUExtension:    !buildNoGPU,
	}

	outcome, err := orchestrator.Run(ctx, req)
	if err != nil {
		var unrecoverable *nativeext.UnrecoverableBuildError
		if errors.As(err, &unrecoverable) {
			logger.Error("Failed to build!")
			return mg.Fatalf(2, "%v", unrecoverable)
		}
		return err
	}

	data, err := renderOutcome(outcome, buildFormat)
	if err != nil {
		return err
	}

	if buildManifest == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(buildManifest, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	logger.Success("Planned %d extension(s) at stage %s, manifest written to %s",
		len(outcome.Extensions), outcome.Stage, buildManifest)
	return nil
}
