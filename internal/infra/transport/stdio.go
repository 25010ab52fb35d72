package transport

import (
	"errors"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/envutil"
)

// NewStdio launches spec.Cmd as a child process speaking MCP over stdio.
// The process lives as long as the session; closing the session stops it.
func NewStdio(spec domain.ServerSpec) (*mcp.CommandTransport, error) {
	if len(spec.Cmd) == 0 {
		return nil, errors.New("cmd is required for stdio transport")
	}

	cmd := exec.Command(spec.Cmd[0], spec.Cmd[1:]...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	cmd.Env = envutil.ServerEnv(os.Environ(), spec.Env)

	return &mcp.CommandTransport{Command: cmd}, nil
}
