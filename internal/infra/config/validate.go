package config

import (
	"fmt"
	"net/url"
	"strings"

	"mcpbroker/internal/domain"
)

func validateConfig(cfg domain.Config) []string {
	var errs []string
	seen := make(map[string]struct{}, len(cfg.Servers))
	for i, spec := range cfg.Servers {
		if _, exists := seen[spec.Name]; exists {
			errs = append(errs, fmt.Sprintf("servers[%d]: duplicate name %q", i, spec.Name))
		} else if spec.Name != "" {
			seen[spec.Name] = struct{}{}
		}
		errs = append(errs, validateServerSpec(spec, i)...)
	}

	if cfg.Model.Provider == "" {
		errs = append(errs, "provider is required")
	}
	if cfg.Model.Model == "" {
		errs = append(errs, "model is required")
	}
	if cfg.Model.MaxTurns < 1 {
		errs = append(errs, "maxTurns must be >= 1")
	}
	if cfg.FetchConcurrency < 1 {
		errs = append(errs, "fetchConcurrency must be >= 1")
	}
	if cfg.CallTimeoutSeconds < 0 {
		errs = append(errs, "callTimeoutSeconds must be >= 0")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of json, console", cfg.Logging.Format))
	}
	return errs
}

func validateServerSpec(spec domain.ServerSpec, index int) []string {
	var errs []string
	prefix := fmt.Sprintf("servers[%d]", index)
	if spec.Name == "" {
		errs = append(errs, prefix+": name is required")
	}
	// Qualified tool names are split on the first dot.
	if strings.Contains(spec.Name, ".") {
		errs = append(errs, fmt.Sprintf("%s: name %q must not contain '.'", prefix, spec.Name))
	}

	hasCmd := len(spec.Cmd) > 0
	hasEndpoint := spec.Endpoint != ""
	switch {
	case hasCmd && hasEndpoint:
		errs = append(errs, prefix+": cmd and endpoint are mutually exclusive")
	case !hasCmd && !hasEndpoint:
		errs = append(errs, prefix+": cmd or endpoint is required")
	}
	if hasCmd && strings.TrimSpace(spec.Cmd[0]) == "" {
		errs = append(errs, prefix+": cmd[0] must not be empty")
	}
	if hasEndpoint {
		parsed, err := url.Parse(spec.Endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Sprintf("%s: endpoint %q must be an http(s) URL", prefix, spec.Endpoint))
		}
	}
	for key := range spec.Headers {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, prefix+": headers contain empty key")
			break
		}
	}
	for i, name := range spec.ExposeTools {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Sprintf("%s: exposeTools[%d] must not be empty", prefix, i))
		}
	}
	return errs
}
