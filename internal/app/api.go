package app

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/telemetry"
)

const maxCallBodyBytes = 1 << 20

type apiError struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (a *Application) apiHandlers() map[string]http.Handler {
	return map[string]http.Handler{
		"GET /v1/servers":            http.HandlerFunc(a.handleServers),
		"GET /v1/tools":              http.HandlerFunc(a.handleTools),
		"GET /v1/tools/{name}":       http.HandlerFunc(a.handleTool),
		"POST /v1/tools/{name}/call": http.HandlerFunc(a.handleCall),
		"GET /v1/schema":             http.HandlerFunc(a.handleSchema),
	}
}

func (a *Application) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := a.Servers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, servers)
}

func (a *Application) handleTools(w http.ResponseWriter, r *http.Request) {
	tools, err := a.Tools(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, tools)
}

func (a *Application) handleTool(w http.ResponseWriter, r *http.Request) {
	tool, err := a.Tool(r.Context(), r.PathValue("name"), r.URL.Query().Get("namespace"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, tool)
}

func (a *Application) handleSchema(w http.ResponseWriter, r *http.Request) {
	view, err := a.Schema(r.Context(), domain.Provider(r.URL.Query().Get("provider")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", `"`+view.ETag+`"`)
	telemetry.WriteJSON(w, http.StatusOK, view)
}

func (a *Application) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBodyBytes))
	if err != nil {
		a.writeError(w, r, domain.Wrap(domain.CodeInvalidArgument, "api.call", err))
		return
	}
	view, err := a.CallTool(r.Context(), r.PathValue("name"), r.URL.Query().Get("namespace"), string(body))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, view)
}

func (a *Application) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := domain.CodeFrom(err)
	if !ok {
		code = domain.CodeInternal
	}
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		telemetry.LoggerWithRequest(r.Context(), a.logger).Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	telemetry.WriteJSON(w, status, apiError{Code: code, Message: err.Error()})
}

func httpStatus(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeFailedPrecond:
		return http.StatusConflict
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case domain.CodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

