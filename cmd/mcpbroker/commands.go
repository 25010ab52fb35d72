package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpbroker/internal/app"
	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/telemetry"
)

func newChatCmd(opts *cliOptions) *cobra.Command {
	var prompt, provider, model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send one prompt to the model with every catalog tool available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(prompt) == "" {
				return exitError{code: 2, message: "--prompt is required"}
			}
			if opts.offline {
				return exitError{code: 2, message: "chat needs live servers; drop --offline"}
			}
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				transcript, err := application.Chat(ctx, app.ChatOptions{
					Prompt:   prompt,
					Provider: domain.Provider(provider),
					Model:    model,
				})
				if err != nil {
					return err
				}
				if opts.output != outputText {
					return writeStructured(cmd.OutOrStdout(), opts.output, "chat", transcript)
				}
				out := cmd.OutOrStdout()
				for _, call := range transcript.ToolCalls {
					printf(out, "[tool %s.%s] %s\n", call.Namespace, call.Name, oneLine(call.Output))
				}
				printf(out, "%s\n", transcript.Answer)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "user prompt")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "model name (overrides config)")
	bindFormatShortcuts(cmd, opts)
	return cmd
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics, health and the catalog API; reconnect on config changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd.Context(), opts, func(ctx context.Context, application *app.Application) error {
				application.Logger().Info("serving",
					zap.String("config", opts.configPath),
					zap.String("listen", application.Config().Observability.ListenAddress),
					zap.Bool("offline", opts.offline),
				)
				return application.Serve(ctx)
			})
		},
	}
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without connecting to servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := telemetry.NewLogger(domain.LoggingConfig{Level: levelOrDefault(opts.logLevel), Format: "console"})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := app.ValidateConfig(cmd.Context(), opts.configPath, logger)
			if err != nil {
				return exitError{code: 2, message: err.Error()}
			}
			printf(cmd.OutOrStdout(), "ok: %d servers (%d enabled)\n", len(cfg.Servers), len(cfg.EnabledServers()))
			return nil
		},
	}
}

func levelOrDefault(level string) string {
	if strings.TrimSpace(level) == "" {
		return "warn"
	}
	return level
}
