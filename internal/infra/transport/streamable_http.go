package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbroker/internal/domain"
)

// NewStreamableHTTP connects to a remote server over streamable HTTP,
// adding the configured headers to every request.
func NewStreamableHTTP(spec domain.ServerSpec) (*mcp.StreamableClientTransport, error) {
	endpoint := strings.TrimSpace(spec.Endpoint)
	if endpoint == "" {
		return nil, errors.New("streamable http endpoint is required")
	}

	headerTransport, err := buildHeaderTransport(spec.Headers)
	if err != nil {
		return nil, err
	}

	return &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Transport: headerTransport},
	}, nil
}

func buildHeaderTransport(configured map[string]string) (http.RoundTripper, error) {
	headers := http.Header{}
	for key, value := range configured {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			return nil, errors.New("http headers contain empty key")
		}
		headers.Set(name, value)
	}

	base := http.DefaultTransport
	if base == nil {
		return nil, errors.New("default http transport is nil")
	}

	return &headerRoundTripper{
		base:    base,
		headers: headers,
	}, nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}
