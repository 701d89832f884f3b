package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"screen/internal/config"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "screen",
		Short:         "Screenshot storage and viewer service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newInitDBCmd(opts),
		newNewIDCmd(),
	)

	return cmd
}

// load resolves the configuration from the file, SCREEN_* variables and
// any explicitly set flags, then installs the logger.
func (o *rootOptions) load(cmd *cobra.Command, flagOpts ...config.Option) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("debug") {
		flagOpts = append(flagOpts, config.WithDebug(o.debug))
	}
	cfg.Apply(flagOpts...)

	setupLogging(os.Stderr, cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(w io.Writer, debug bool) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    debug,
	})

	slog.SetDefault(slog.New(handler))
}

// flagString returns an Option for a string flag only when it was set on the
// command line, so unset flags do not override the config file.
func flagString(cmd *cobra.Command, name string, opt func(string) config.Option) []config.Option {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil
	}
	return []config.Option{opt(v)}
}

func flagBool(cmd *cobra.Command, name string, opt func(bool) config.Option) []config.Option {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return nil
	}
	return []config.Option{opt(v)}
}
