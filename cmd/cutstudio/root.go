package main

import (
	"strings"
	"sync"

	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/nextconvert/cutstudio/internal/shared/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type commandContext struct {
	configFlag  string
	verbose     bool
	cleanupFlag bool

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

func (c *commandContext) ensure() (*config.Config, *zap.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.LoadWithFile(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.NewCLILogger(c.verbose)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "cutstudio",
		Short:         "Trim, merge and resize videos with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVar(&ctx.cleanupFlag, "cleanup-on-failure", false, "Delete intermediate files when a job fails or is cancelled")

	rootCmd.AddCommand(newTrimCommand(ctx))
	rootCmd.AddCommand(newMergeCommand(ctx))
	rootCmd.AddCommand(newResizeCommand(ctx))
	rootCmd.AddCommand(newAutoCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand())

	return rootCmd
}
