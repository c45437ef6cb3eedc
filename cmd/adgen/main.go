// Package main provides the adgen CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/adgen/internal/config"
)

const version = "v0.1.0-dev"

var (
	// Global flags
	verbose    bool
	configPath string

	// Function overrides shared by generate, check and watch
	fnExpr     string
	fnName     string
	fnInputs   []string
	fnSeed     string
	fnPoints   []float64
	outTarget  string
	outPrec    string
	outPath    string
	outPackage string
	checkTol   float64
	checkStep  float64

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adgen",
	Short: "adgen - reverse-mode gradient code generator",
	Long: `adgen traces scalar expressions and emits source code that computes
their value and the gradient of the result with respect to every input.

Functions are read from a YAML config file (default adgen.yaml) or given
on the command line with --expr.`,
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

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "adgen %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "adgen.yaml", "Config file")

	for _, cmd := range []*cobra.Command{generateCmd, checkCmd, watchCmd} {
		addFunctionFlags(cmd)
	}
	checkCmd.Flags().Float64SliceVar(&fnPoints, "point", nil, "Check point for --expr (one value per input)")
	checkCmd.Flags().Float64Var(&checkTol, "tolerance", 0, "Relative tolerance (default from config)")
	checkCmd.Flags().Float64Var(&checkStep, "step", 0, "Central difference step (default from config)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func addFunctionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&fnExpr, "expr", "e", "", "Expression to differentiate, replaces the configured functions")
	cmd.Flags().StringVar(&fnName, "name", "F", "Function name for --expr")
	cmd.Flags().StringSliceVar(&fnInputs, "inputs", nil, "Input names for --expr")
	cmd.Flags().StringVar(&fnSeed, "seed", "", "Seed parameter name for --expr (default d<name>)")
	cmd.Flags().StringVarP(&outTarget, "target", "t", "", "Target language: cpp or go")
	cmd.Flags().StringVarP(&outPrec, "precision", "p", "", "Scalar precision: float32 or float64")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&outPackage, "package", "", "Go package name")
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if outTarget != "" {
		cfg.Target = outTarget
	}
	if outPrec != "" {
		cfg.Precision = outPrec
	}
	if outPath != "" {
		cfg.Output = outPath
	}
	if outPackage != "" {
		cfg.Package = outPackage
	}
	if checkTol > 0 {
		cfg.Check.Tolerance = checkTol
	}
	if checkStep > 0 {
		cfg.Check.Step = checkStep
	}
	if fnExpr != "" {
		fn := config.Function{Name: fnName, Inputs: fnInputs, Expr: fnExpr, Seed: fnSeed}
		if len(fnPoints) > 0 {
			fn.Points = [][]float64{fnPoints}
		}
		cfg.Functions = []config.Function{fn}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
