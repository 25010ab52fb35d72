// Package transport builds MCP client transports for configured servers.
package transport

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbroker/internal/domain"
)

// New returns the client transport for a server: streamable HTTP when an
// endpoint is configured, otherwise a child process over stdio.
func New(_ context.Context, spec domain.ServerSpec) (mcp.Transport, error) {
	if spec.IsHTTP() {
		transport, err := NewStreamableHTTP(spec)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", spec.Name, err)
		}
		return transport, nil
	}
	transport, err := NewStdio(spec)
	if err != nil {
		return nil, fmt.Errorf("server %q: %w", spec.Name, err)
	}
	return transport, nil
}
