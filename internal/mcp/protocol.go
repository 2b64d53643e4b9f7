package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/onec-help/onechelp/internal/reindex"
	"github.com/onec-help/onechelp/internal/search"
)

// ProtocolVersion is the MCP protocol revision the server speaks.
const ProtocolVersion = "2025-06-18"

const (
	serverName         = "onechelp"
	notificationPrefix = "notifications/"
)

// SearchService is the slice of the search engine the protocol needs.
type SearchService interface {
	FindHelp(ctx context.Context, query string, limit int) ([]*search.Result, error)
	GetSyntaxInfo(ctx context.Context, objectName, elementName string) (*search.Result, error)
	ListMembers(ctx context.Context, objectName, memberType string) ([]*search.Result, error)
	SearchByContext(ctx context.Context, contextText string, limit int) ([]*search.Result, error)
	GetQuickReference(ctx context.Context, topic string) ([]*search.Result, error)
}

// RebuildService triggers and reports index rebuilds.
type RebuildService interface {
	Trigger(ctx context.Context) error
	Status() reindex.Snapshot
}

type methodHandler func(ctx context.Context, params json.RawMessage) (any, error)
type toolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Handler dispatches JSON-RPC 2.0 envelopes. Both dispatch tables are
// built once at construction; no reflection at call time.
type Handler struct {
	search  SearchService
	rebuild RebuildService
	logger  *slog.Logger
	version string

	methods map[string]methodHandler
	tools   map[string]toolHandler
}

// HandlerOption configures the protocol handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithServerVersion sets the version reported by initialize.
func WithServerVersion(v string) HandlerOption {
	return func(h *Handler) { h.version = v }
}

// NewHandler creates a protocol handler over the given services.
func NewHandler(searchSvc SearchService, rebuildSvc RebuildService, opts ...HandlerOption) *Handler {
	h := &Handler{
		search:  searchSvc,
		rebuild: rebuildSvc,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(h)
	}

	h.methods = map[string]methodHandler{
		"initialize":     h.handleInitialize,
		"tools/list":     h.handleToolsList,
		"tools/call":     h.handleToolsCall,
		"prompts/list":   h.handlePromptsList,
		"resources/list": h.handleResourcesList,
	}
	h.tools = h.buildToolTable()
	return h
}

// request is the incoming envelope. JSONRPC is a pointer so an absent
// field is distinguishable from an empty one; ID stays raw so the
// response can echo it byte for byte.
type request struct {
	JSONRPC *string         `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

// response is the outgoing envelope. Notifications never produce one.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// Handle processes one envelope and returns the response body. For
// notification methods the body is a bare empty object: no id, no
// result, no error.
func (h *Handler) Handle(ctx context.Context, body []byte) []byte {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return h.errorBody(nullID, &RPCError{Code: ErrCodeParseError, Message: "Parse error"})
	}

	if req.JSONRPC == nil || *req.JSONRPC != "2.0" {
		return h.errorBody(nullID, &RPCError{Code: ErrCodeInvalidRequest, Message: "Invalid Request"})
	}

	if strings.HasPrefix(req.Method, notificationPrefix) {
		// Processed for side effect only; none of the known
		// notifications carry one.
		h.logger.Debug("notification received", slog.String("method", req.Method))
		return []byte("{}")
	}

	id := req.ID
	if missingID(id) {
		return h.errorBody(nullID, &RPCError{
			Code:    ErrCodeInvalidRequest,
			Message: "Invalid Request: Missing required 'id' field",
		})
	}

	handler, ok := h.methods[req.Method]
	if !ok {
		return h.errorBody(id, NewMethodNotFoundError(req.Method))
	}

	result, err := h.dispatch(ctx, handler, req.Params)
	if err != nil {
		rpcErr := MapError(err)
		if rpcErr.Code == ErrCodeInternalError {
			h.logger.Error("request failed",
				slog.String("method", req.Method),
				slog.String("error", err.Error()))
		}
		return h.errorBody(id, rpcErr)
	}
	return h.resultBody(id, result)
}

// dispatch invokes a method handler, converting a panic into an
// internal error instead of a malformed response.
func (h *Handler) dispatch(ctx context.Context, handler methodHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic", slog.Any("panic", r))
			result = nil
			err = &RPCError{Code: ErrCodeInternalError, Message: "Internal server error."}
		}
	}()
	return handler(ctx, params)
}

func (h *Handler) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": h.version,
		},
	}, nil
}

func (h *Handler) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"tools": ToolDescriptors()}, nil
}

func (h *Handler) handlePromptsList(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"prompts": []any{}}, nil
}

func (h *Handler) handleResourcesList(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"resources": []any{}}, nil
}

func (h *Handler) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, NewInvalidParamsError("Invalid params: expected {name, arguments}")
	}
	if call.Name == "" {
		return nil, NewInvalidParamsError("Invalid params: tool name is required")
	}

	tool, ok := h.tools[call.Name]
	if !ok {
		return nil, NewMethodNotFoundError(call.Name)
	}
	return tool(ctx, call.Arguments)
}

func missingID(id json.RawMessage) bool {
	return len(id) == 0 || bytes.Equal(id, nullID)
}

func (h *Handler) resultBody(id json.RawMessage, result any) []byte {
	return h.marshal(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *Handler) errorBody(id json.RawMessage, rpcErr *RPCError) []byte {
	return h.marshal(response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func (h *Handler) marshal(resp response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("response marshal failed", slog.String("error", err.Error()))
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal server error."}}`)
	}
	return data
}
