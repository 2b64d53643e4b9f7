package mcp

import (
	"context"
	"encoding/json"
	"errors"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/search"
)

// Tool names exposed through tools/call.
const (
	ToolFindHelp       = "find_1c_help"
	ToolSyntaxInfo     = "get_syntax_info"
	ToolQuickReference = "get_quick_reference"
	ToolSearchContext  = "search_by_context"
	ToolListMembers    = "list_object_members"
	ToolRebuildIndex   = "rebuild_index"
	ToolIndexStatus    = "index_status"
)

// ToolDescriptor describes one callable tool for tools/list and the
// HTTP catalog.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolDescriptors returns the search tool catalog. The maintenance
// tools (rebuild_index, index_status) are callable but not advertised,
// matching the HTTP rebuild/status endpoints they mirror.
func ToolDescriptors() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        ToolFindHelp,
			Description: "Search 1C:Enterprise documentation by free-text query",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query, Russian or English"},
				"limit": map[string]any{"type": "integer", "description": "Maximum results, 1-100", "default": search.DefaultLimit},
			}, "query"),
		},
		{
			Name:        ToolSyntaxInfo,
			Description: "Get syntax details for an object type or one of its members",
			InputSchema: objectSchema(map[string]any{
				"object_name":  map[string]any{"type": "string", "description": "Object type name"},
				"element_name": map[string]any{"type": "string", "description": "Member name; omit for the object itself"},
			}, "object_name"),
		},
		{
			Name:        ToolQuickReference,
			Description: "Resolve a topic against global functions and object types",
			InputSchema: objectSchema(map[string]any{
				"topic": map[string]any{"type": "string", "description": "Function or type name"},
			}, "topic"),
		},
		{
			Name:        ToolSearchContext,
			Description: "Search documentation descriptions and code examples",
			InputSchema: objectSchema(map[string]any{
				"context": map[string]any{"type": "string", "description": "Usage context to search for"},
				"limit":   map[string]any{"type": "integer", "description": "Maximum results, 1-100", "default": search.DefaultLimit},
			}, "context"),
		},
		{
			Name:        ToolListMembers,
			Description: "List methods, properties and events of an object type",
			InputSchema: objectSchema(map[string]any{
				"object_name": map[string]any{"type": "string", "description": "Object type name"},
				"member_type": map[string]any{"type": "string", "enum": []string{"method", "property", "event"}},
			}, "object_name"),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (h *Handler) buildToolTable() map[string]toolHandler {
	return map[string]toolHandler{
		ToolFindHelp:       h.callFindHelp,
		ToolSyntaxInfo:     h.callSyntaxInfo,
		ToolQuickReference: h.callQuickReference,
		ToolSearchContext:  h.callSearchContext,
		ToolListMembers:    h.callListMembers,
		ToolRebuildIndex:   h.callRebuildIndex,
		ToolIndexStatus:    h.callIndexStatus,
	}
}

func (h *Handler) callFindHelp(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	results, err := h.search.FindHelp(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{
		"found":   len(results) > 0,
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) callSyntaxInfo(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ObjectName  string `json:"object_name"`
		ElementName string `json:"element_name"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	result, err := h.search.GetSyntaxInfo(ctx, in.ObjectName, in.ElementName)
	if helperrors.IsNotFound(err) {
		return notFoundResult(err)
	}
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{"found": true, "result": result})
}

func (h *Handler) callQuickReference(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Topic string `json:"topic"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	results, err := h.search.GetQuickReference(ctx, in.Topic)
	if helperrors.IsNotFound(err) {
		return notFoundResult(err)
	}
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{
		"found":   true,
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) callSearchContext(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Context string `json:"context"`
		Limit   int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	results, err := h.search.SearchByContext(ctx, in.Context, in.Limit)
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{
		"found":   len(results) > 0,
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) callListMembers(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ObjectName string `json:"object_name"`
		MemberType string `json:"member_type"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	results, err := h.search.ListMembers(ctx, in.ObjectName, in.MemberType)
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{
		"found":   len(results) > 0,
		"count":   len(results),
		"members": results,
	})
}

func (h *Handler) callRebuildIndex(ctx context.Context, args json.RawMessage) (any, error) {
	err := h.rebuild.Trigger(ctx)
	if err != nil {
		if helperrors.GetCode(err) == helperrors.ErrCodeRebuildBusy {
			return textResult(map[string]any{
				"accepted": false,
				"reason":   "rebuild already in progress",
			})
		}
		return nil, err
	}
	return textResult(map[string]any{"accepted": true})
}

func (h *Handler) callIndexStatus(ctx context.Context, args json.RawMessage) (any, error) {
	return textResult(h.rebuild.Status())
}

// decodeArgs unmarshals tool arguments; malformed arguments surface as
// invalid-params, not internal errors. Absent arguments decode as the
// zero value and fail the tool's own validation instead.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewInvalidParamsError("Invalid params: malformed tool arguments")
	}
	return nil
}

// textResult wraps a JSON-serializable value as MCP text content.
func textResult(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, helperrors.InternalError("cannot serialize tool result", err)
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(data)}},
	}, nil
}

func notFoundResult(err error) (any, error) {
	msg := "not found"
	var helpErr *helperrors.HelpError
	if errors.As(err, &helpErr) {
		msg = helpErr.Message
	}
	return textResult(map[string]any{"found": false, "message": msg})
}
