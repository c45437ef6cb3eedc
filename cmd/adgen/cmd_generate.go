package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/adgen/internal/driver"
)

// generateCmd writes gradient functions for the configured expressions
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate gradient code",
	Long: `Traces every configured function and writes its gradient code.

Examples:
  adgen generate
  adgen generate -t go -p float64 -e "x*y + sin(x)" --inputs x,y -o grad.go`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

// checkCmd verifies generated gradients against finite differences
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check generated gradients numerically",
	Long: `Interprets the generated Go gradient of every configured function in
float64 and compares it against central differences at each check point.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

// watchCmd regenerates whenever the config file changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate when the config file changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := driver.New(cfg, logger)
	if err != nil {
		return err
	}
	return g.Run(cmd.Context(), cmd.OutOrStdout())
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := driver.New(cfg, logger)
	if err != nil {
		return err
	}
	reports, err := g.CheckAll(cmd.Context())
	for _, r := range reports {
		if r != nil {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
	}
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	regenerate := func() error {
		if err := runGenerate(cmd, args); err != nil {
			return err
		}
		logger.Info("regenerated", zap.String("config", configPath))
		return nil
	}
	if err := regenerate(); err != nil {
		logger.Warn("initial generation failed", zap.Error(err))
	}
	return driver.Watch(ctx, configPath, logger, regenerate)
}
