package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mcpbroker/internal/app"
)

const defaultConfigPath = "mcpbroker.yaml"

type cliOptions struct {
	configPath string
	offline    bool
	logLevel   string
	output     outputFormat
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		configPath: defaultConfigPath,
		output:     outputText,
	}

	root := &cobra.Command{
		Use:           "mcpbroker",
		Short:         "Catalog MCP server tools and expose them to LLM function calling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", opts.configPath, "path to config file (yaml, json or toml)")
	flags.BoolVar(&opts.offline, "offline", false, "use the latest stored catalog snapshot instead of connecting to servers")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.VarP(&opts.output, "output", "o", "output format: text, json, yaml or toml")

	root.AddCommand(
		newServersCmd(&opts),
		newToolsCmd(&opts),
		newChatCmd(&opts),
		newServeCmd(&opts),
		newValidateCmd(&opts),
	)

	return root
}

func (o *cliOptions) appOptions() app.Options {
	return app.Options{
		ConfigPath: o.configPath,
		Offline:    o.offline,
		LogLevel:   o.logLevel,
	}
}

// withApplication wires the application for one command and tears it down
// afterwards.
func withApplication(ctx context.Context, opts *cliOptions, fn func(ctx context.Context, application *app.Application) error) error {
	ctx, cancel := signalAwareContext(ctx)
	defer cancel()

	application, cleanup, err := app.InitializeApplication(ctx, opts.appOptions())
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = application.Logger().Sync() }()

	return fn(ctx, application)
}

// bindFormatShortcuts adds --json/--yaml/--toml as aliases for --output.
func bindFormatShortcuts(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().Bool("json", false, "shorthand for --output json")
	cmd.Flags().Bool("yaml", false, "shorthand for --output yaml")
	cmd.Flags().Bool("toml", false, "shorthand for --output toml")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml", "toml")

	previous := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.Flags().Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "json":
				opts.output = outputJSON
			case "yaml":
				opts.output = outputYAML
			case "toml":
				opts.output = outputTOML
			}
		})
		if previous != nil {
			return previous(cmd, args)
		}
		return nil
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
