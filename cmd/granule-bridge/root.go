package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/earthdata/granule-bridge/internal/core/config"
	"github.com/earthdata/granule-bridge/internal/logger"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	logLevel   string
	cfg        config.Config
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "granule-bridge",
		Short:         "OpenSearch granule search bridge",
		Long:          "granule-bridge resolves a collection's OpenSearch description, renders its Atom URL template\nfrom search parameters and proxies the granule query.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file (environment variables take precedence)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug|info|warn|error)")

	root.AddCommand(newServeCmd(a), newResolveCmd(a), newRenderCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "granule-bridge",
	}, cmd.ErrOrStderr())
	a.log = logger.NewSlog(&zl)
	return nil
}
