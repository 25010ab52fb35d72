package main

import (
	"context"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpbroker/internal/app"
	"mcpbroker/internal/domain"
)

func newServersCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List configured servers with their tool counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				servers, err := application.Servers(ctx)
				if err != nil {
					return err
				}
				if opts.output != outputText {
					return writeStructured(cmd.OutOrStdout(), opts.output, "servers", servers)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				printf(tw, "ID\tSERVER\tTOOLS\tSTATUS\n")
				for i, srv := range servers {
					status := srv.Status
					if srv.Error != "" {
						status += ": " + oneLine(srv.Error)
					}
					printf(tw, "%d\t%s\t%d\t%s\n", i+1, srv.Name, srv.ToolCount, status)
				}
				return tw.Flush()
			})
		},
	}
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newToolsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect, adapt and call catalog tools",
	}
	cmd.AddCommand(
		newToolsListCmd(opts),
		newToolsShowCmd(opts),
		newToolsSchemaCmd(opts),
		newToolsCallCmd(opts),
		newToolsSyncCmd(opts),
		newToolsHistoryCmd(opts),
	)
	return cmd
}

func newToolsListCmd(opts *cliOptions) *cobra.Command {
	var all, details bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools; duplicate names keep the first server unless --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				tools, err := application.Tools(ctx, all)
				if err != nil {
					return err
				}
				if opts.output != outputText {
					return writeStructured(cmd.OutOrStdout(), opts.output, "tools", tools)
				}
				return printToolTable(cmd, tools, details)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include tools shadowed by an earlier server")
	cmd.Flags().BoolVar(&details, "details", false, "show parameters")
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func printToolTable(cmd *cobra.Command, tools []domain.ToolInfo, details bool) error {
	out := cmd.OutOrStdout()
	printf(out, "%d Available Tools\n", len(tools))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if details {
		printf(tw, "SERVER\tTOOL\tDESCRIPTION\tPARAMETERS\n")
	} else {
		printf(tw, "SERVER\tTOOL\tDESCRIPTION\n")
	}
	for _, tool := range tools {
		display := app.DisplayTool(tool, details)
		if !details {
			printf(tw, "%s\t%s\t%s\n", display.Server, display.Name, oneLine(display.Description))
			continue
		}
		params := "None"
		if len(display.Parameters) > 0 {
			params = strings.Join(display.Parameters, ", ")
		}
		printf(tw, "%s\t%s\t%s\t%s\n", display.Server, display.Name, oneLine(display.Description), params)
	}
	return tw.Flush()
}

func newToolsShowCmd(opts *cliOptions) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show one tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				tool, err := application.Tool(ctx, args[0], namespace)
				if err != nil {
					return err
				}
				if opts.output != outputText {
					return writeStructured(cmd.OutOrStdout(), opts.output, "tool", tool)
				}
				display := app.DisplayTool(tool, true)
				out := cmd.OutOrStdout()
				printf(out, "%s (%s)\n", display.Name, display.Server)
				printf(out, "%s\n", display.Description)
				if len(display.Tags) > 0 {
					printf(out, "tags: %s\n", strings.Join(display.Tags, ", "))
				}
				printf(out, "parameters:\n")
				if len(display.Parameters) == 0 {
					printf(out, "  None\n")
				}
				for _, line := range display.Parameters {
					printf(out, "  %s\n", line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "server namespace (defaults to the first server exposing NAME)")
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newToolsSchemaCmd(opts *cliOptions) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print function-calling specs and the name mapping for a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				view, err := application.Schema(ctx, domain.Provider(provider))
				if err != nil {
					return err
				}
				format := opts.output
				if format == outputText {
					format = outputJSON
				}
				return writeStructured(cmd.OutOrStdout(), format, "schema", view)
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider dialect (defaults to the configured provider)")
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newToolsCallCmd(opts *cliOptions) *cobra.Command {
	var namespace, rawArgs string
	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Execute a tool and print its normalized result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.offline {
				return exitError{code: 2, message: "tools call needs live servers; drop --offline"}
			}
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				view, err := application.CallTool(ctx, args[0], namespace, rawArgs)
				if err != nil {
					return err
				}
				if opts.output != outputText {
					if err := writeStructured(cmd.OutOrStdout(), opts.output, "call", view); err != nil {
						return err
					}
				} else {
					printf(cmd.OutOrStdout(), "%s\n", view.Text)
				}
				if !view.Result.Success {
					if opts.output == outputText {
						return exitError{code: 1, message: "tool reported an error"}
					}
					return exitSilent(1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "server namespace (defaults to the first server exposing NAME)")
	cmd.Flags().StringVar(&rawArgs, "args", "", "tool arguments as a JSON object")
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newToolsSyncCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Store a catalog snapshot for --offline use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				result, err := application.SyncSnapshot(ctx)
				if err != nil {
					return err
				}
				if opts.output != outputText {
					return writeStructured(cmd.OutOrStdout(), opts.output, "sync", result)
				}
				out := cmd.OutOrStdout()
				printf(out, "etag=%s tools=%d path=%s\n", result.ETag, result.ToolCount, result.Path)
				printf(out, "added=%d removed=%d updated=%d\n", len(result.Diff.Added), len(result.Diff.Removed), len(result.Diff.Updated))
				return nil
			})
		},
	}
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newToolsHistoryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored catalog snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ValidateConfig(cmd.Context(), opts.configPath, zap.NewNop())
			if err != nil {
				return err
			}
			entries, err := app.SnapshotHistory(cfg)
			if err != nil {
				return err
			}
			if opts.output != outputText {
				return writeStructured(cmd.OutOrStdout(), opts.output, "snapshots", entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "BUILT\tETAG\tTOOLS\n")
			for _, entry := range entries {
				printf(tw, "%s\t%s\t%d\n", entry.BuiltAt.Format("2006-01-02 15:04:05"), entry.ETag, entry.ToolCount)
			}
			return tw.Flush()
		},
	}
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func oneLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
