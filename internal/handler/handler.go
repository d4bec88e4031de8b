// Package handler provides the request handler that routes protocol requests
// to the report engine.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mantis/reportd/internal/pool"
	"github.com/mantis/reportd/internal/protocol"
	"github.com/mantis/reportd/internal/report"
)

// PoolStatter reports the state of the named connections. *pool.Provider
// implements it.
type PoolStatter interface {
	Stats() []pool.ConnectionStats
}

// Handler processes protocol requests against the report engine.
type Handler struct {
	engine *report.Engine
	pools  PoolStatter // optional
	logger *slog.Logger
}

// New creates a Handler. pools may be nil, in which case pool.stats returns
// an empty list. A nil logger discards log output.
func New(engine *report.Engine, pools PoolStatter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		engine: engine,
		pools:  pools,
		logger: logger,
	}
}

// Handle processes a request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	// Parse method to get category and operation
	parts := strings.SplitN(req.Method, ".", 2)
	if len(parts) != 2 {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeMethodNotFound,
			fmt.Sprintf("invalid method format: %s", req.Method), nil)
	}

	category := parts[0]
	operation := parts[1]

	switch category {
	case "report":
		return h.handleReport(ctx, req, operation)
	case "pool":
		return h.handlePool(req, operation)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeMethodNotFound,
			fmt.Sprintf("unknown method category: %s", category), nil)
	}
}

// handleReport handles report.* methods.
func (h *Handler) handleReport(ctx context.Context, req *protocol.RequestEnvelope, operation string) *protocol.ResponseEnvelope {
	switch operation {
	case "list":
		return h.handleListReports(req)
	case "parameters":
		return h.handleListParameters(ctx, req)
	case "run":
		return h.handleRunReport(ctx, req)
	case "suggest":
		return h.handleSuggest(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeMethodNotFound,
			fmt.Sprintf("unknown report operation: %s", operation), nil)
	}
}

// handlePool handles pool.* methods.
func (h *Handler) handlePool(req *protocol.RequestEnvelope, operation string) *protocol.ResponseEnvelope {
	switch operation {
	case "stats":
		return h.handlePoolStats(req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeMethodNotFound,
			fmt.Sprintf("unknown pool operation: %s", operation), nil)
	}
}

// --- Report handlers ---

func (h *Handler) handleListReports(req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	return h.success(req.ID, protocol.ListReportsResponse{Reports: h.engine.Reports()})
}

func (h *Handler) handleListParameters(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	var params protocol.ReportParams
	if resp := parseParams(req, &params); resp != nil {
		return resp
	}
	if params.Report == "" {
		return invalidRequest(req.ID, "report is required")
	}

	set, err := h.engine.ListParameters(ctx, params.Report)
	if err != nil {
		return h.errorResponse(req, err)
	}

	infos := make([]protocol.ParameterInfo, len(set))
	for i, p := range set {
		infos[i] = protocol.ParameterInfo{
			Name:       p.Name,
			Column:     p.Column,
			NativeType: p.NativeType,
			Domain:     string(p.Domain),
			Required:   p.Required,
		}
	}
	return h.success(req.ID, protocol.ListParametersResponse{Report: params.Report, Parameters: infos})
}

func (h *Handler) handleRunReport(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	var params protocol.RunReportParams
	if resp := parseParams(req, &params); resp != nil {
		return resp
	}
	if params.Report == "" {
		return invalidRequest(req.ID, "report is required")
	}

	page, err := report.NewPage(params.Page, params.PageSize, h.engine.DefaultPageSize())
	if err != nil {
		return h.errorResponse(req, err)
	}

	result, err := h.engine.RunReport(ctx, params.Report, params.Params, page)
	if err != nil {
		// A database rejection is a well-formed result carrying the error.
		var execErr *report.ExecutionError
		if errors.As(err, &execErr) && ctx.Err() == nil {
			return h.success(req.ID, protocol.RunReportResponse{Error: queryError(execErr)})
		}
		return h.errorResponse(req, err)
	}

	return h.success(req.ID, protocol.RunReportResponse{
		Data:     result.Data,
		Page:     page.Number,
		PageSize: page.Size,
	})
}

func (h *Handler) handleSuggest(ctx context.Context, req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	var params protocol.SuggestParams
	if resp := parseParams(req, &params); resp != nil {
		return resp
	}
	switch {
	case params.Report == "":
		return invalidRequest(req.ID, "report is required")
	case params.Param == "":
		return invalidRequest(req.ID, "param is required")
	case params.Input == "":
		return invalidRequest(req.ID, "input is required")
	}

	suggestions, err := h.engine.Suggest(ctx, params.Report, params.Param, params.Input)
	if err != nil {
		return h.errorResponse(req, err)
	}
	return h.success(req.ID, protocol.SuggestResponse{Suggestions: suggestions})
}

// --- Pool handlers ---

func (h *Handler) handlePoolStats(req *protocol.RequestEnvelope) *protocol.ResponseEnvelope {
	pools := []protocol.PoolInfo{}
	if h.pools != nil {
		for _, cs := range h.pools.Stats() {
			info := protocol.PoolInfo{Name: cs.Name, Driver: cs.Driver, Open: cs.Open}
			if cs.Pool != nil {
				created := cs.Pool.CreatedAt
				info.CreatedAt = &created
				info.Reopened = cs.Pool.Reopened
				info.OpenConnections = cs.Pool.Stats.OpenConnections
				info.InUse = cs.Pool.Stats.InUse
				info.Idle = cs.Pool.Stats.Idle
				info.WaitCount = cs.Pool.Stats.WaitCount
			}
			pools = append(pools, info)
		}
	}
	return h.success(req.ID, protocol.PoolStatsResponse{Pools: pools})
}

// --- Helpers ---

func parseParams(req *protocol.RequestEnvelope, v interface{}) *protocol.ResponseEnvelope {
	if err := req.ParseParams(v); err != nil {
		return invalidRequest(req.ID, fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

func invalidRequest(id, msg string) *protocol.ResponseEnvelope {
	return protocol.NewErrorResponse(id, protocol.ErrCodeInvalidRequest, msg, nil)
}

func (h *Handler) success(id string, result interface{}) *protocol.ResponseEnvelope {
	resp, err := protocol.NewSuccessResponse(id, result)
	if err != nil {
		h.logger.Error("failed to encode result", "id", id, "error", err)
		return protocol.NewErrorResponse(id, protocol.ErrCodeInternal, err.Error(), nil)
	}
	return resp
}

func queryError(e *report.ExecutionError) *protocol.QueryError {
	return &protocol.QueryError{
		Fragment:   e.Fragment,
		Message:    e.Info.Message,
		Code:       e.Info.Code,
		SQLState:   e.Info.SQLState,
		Errno:      e.Info.Number,
		SQLMessage: e.Info.SQLMessage,
	}
}

// errorResponse creates an appropriate error response based on the error type.
func (h *Handler) errorResponse(req *protocol.RequestEnvelope, err error) *protocol.ResponseEnvelope {
	code, details := classify(err)
	if !protocol.IsClientError(code) {
		h.logger.Error("request failed", "id", req.ID, "method", req.Method, "code", code, "error", err)
	}
	return protocol.NewErrorResponse(req.ID, code, err.Error(), details)
}

// classify maps an engine error onto a protocol error code and details.
func classify(err error) (string, map[string]interface{}) {
	var (
		missing   *report.MissingParametersError
		schemaErr *report.SchemaUnavailableError
		execErr   *report.ExecutionError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrCodeTimeout, nil
	case errors.Is(err, report.ErrReportNotFound):
		return protocol.ErrCodeReportNotFound, nil
	case errors.As(err, &missing):
		details := map[string]interface{}{"missing": missing.Names}
		if invalid := report.InvalidParameters(err); len(invalid) > 0 {
			details["invalid"] = invalidDetails(invalid)
		}
		return protocol.ErrCodeMissingParameters, details
	case len(report.InvalidParameters(err)) > 0:
		return protocol.ErrCodeInvalidParameter, map[string]interface{}{
			"invalid": invalidDetails(report.InvalidParameters(err)),
		}
	case errors.Is(err, report.ErrNoSuggestionQuery):
		return protocol.ErrCodeNoSuggestionQuery, nil
	case errors.Is(err, report.ErrInvalidPage):
		return protocol.ErrCodeInvalidRequest, nil
	case errors.As(err, &schemaErr):
		return protocol.ErrCodeSchemaUnavailable, map[string]interface{}{"table": schemaErr.Table}
	case errors.Is(err, pool.ErrConnectionFailed), errors.Is(err, pool.ErrUnknownConnection):
		return protocol.ErrCodeConnectionFailed, nil
	case errors.As(err, &execErr):
		q := queryError(execErr)
		return protocol.ErrCodeQueryFailed, map[string]interface{}{
			"code":        q.Code,
			"sql_state":   q.SQLState,
			"errno":       q.Errno,
			"sql_message": q.SQLMessage,
		}
	default:
		return protocol.ErrCodeInternal, nil
	}
}

func invalidDetails(invalid []*report.InvalidParameterError) []map[string]interface{} {
	out := make([]map[string]interface{}, len(invalid))
	for i, e := range invalid {
		out[i] = map[string]interface{}{
			"name":   e.Name,
			"domain": string(e.Domain),
			"value":  e.Value,
			"reason": e.Err.Error(),
		}
	}
	return out
}
