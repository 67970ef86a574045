package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/notargets/topopt/config"
	"github.com/notargets/topopt/driver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var (
	verbose    bool
	configPath string
	outPath    string
	noFrames   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stopt",
	Short: "Structural topology optimization on a rectangular grid",
	Long: `stopt minimizes the compliance of a 2D plane-stress structure on a grid of
bilinear quad elements subject to a material volume constraint.

The problem (grid, material, supports, loads) is read from a YAML file; see
"stopt init" for a starting point.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the optimization and write the result",
	Long: `Loads the problem file, runs opt_steps optimizer iterations and writes the
loss history, the final physical density and the per-evaluation density
frames as YAML to --out (stdout when empty).`,
	RunE: runProblem,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a problem file and report its size",
	RunE:  checkProblem,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default problem file",
	RunE:  initProblem,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "problem file")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "result file (default stdout)")
	runCmd.Flags().BoolVar(&noFrames, "no-frames", false, "do not record density frames")
	_ = runCmd.MarkFlagRequired("config")

	checkCmd.Flags().StringVarP(&configPath, "config", "c", "", "problem file")
	_ = checkCmd.MarkFlagRequired("config")

	initCmd.Flags().StringVarP(&outPath, "out", "o", "problem.yaml", "problem file to create")

	rootCmd.AddCommand(runCmd, checkCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runProblem(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	opts := []driver.Option{driver.WithLogger(logger)}
	if noFrames {
		opts = append(opts, driver.WithoutTrace())
	}
	d, err := driver.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := d.Run()
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), outPath, res)
}

func writeResult(stdout io.Writer, path string, res *driver.Result) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	logger.Info("result written", zap.String("path", path))
	return nil
}

func checkProblem(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	d, err := driver.New(cfg, driver.WithLogger(logger))
	if err != nil {
		return err
	}
	p := d.Model.Partition
	fmt.Fprintf(cmd.OutOrStdout(), "grid %dx%d: %d elements, %d DOFs (%d free, %d fixed)\n",
		cfg.Width, cfg.Height, d.Model.Grid.NumElements(), p.NumDOFs, p.NumFree(), len(p.Fixed))
	return nil
}

func initProblem(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("%s already exists", outPath)
	}
	if err := config.DefaultProblem().Save(outPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
	return nil
}
