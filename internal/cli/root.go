// Package cli implements the nativeext command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	nativeext "github.com/contriboss/native-extension-go"
	"github.com/contriboss/native-extension-go/internal/output"
)

var (
	cfgFile    string
	projectDir string
	envFile    string
	verbose    bool
	quiet      bool
	noColor    bool

	logger = output.DefaultLogger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nativeext",
	Short: "Adaptive native extension build planner",
	Long: `nativeext - adaptive native extension build planner

Locates the GPU toolchain, compiles the optional GPU kernel library and
plans the package's native extensions. When a compilation step fails the
most demanding feature is dropped and the plan is retried, down to a
pure-language build.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupEnvironment,
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is nativeext.toml or nativeext.yaml in --dir)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with CUDAHOME/CUDA_PATH overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupEnvironment(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)
	logger.SetQuiet(quiet)
	if noColor {
		logger.SetNoColor(true)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	return nil
}

// loadConfig reads the project config. When required is false and no file
// exists, the defaults are returned for projectDir.
func loadConfig(required bool) (*nativeext.Config, error) {
	path := cfgFile
	if path == "" {
		path = nativeext.FindConfigFile(projectDir)
	}

	if path == "" {
		if required {
			return nil, fmt.Errorf("no nativeext.toml or nativeext.yaml found in %s", projectDir)
		}
		cfg := nativeext.DefaultConfig()
		cfg.ProjectDir = projectDir
		return cfg, nil
	}

	cfg, err := nativeext.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded config from %s", path)
	return cfg, nil
}
