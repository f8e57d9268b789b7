package mcp

import (
	"encoding/json"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
)

// TextResult wraps a tool's successful return value as the single JSON
// text part spec §4.6 requires. A value already shaped as a
// *mcp_sdk.CallToolResult (used by resource-style tools that need extra
// control) passes through unchanged.
func TextResult(v any) *mcp_sdk.CallToolResult {
	if ctr, ok := v.(*mcp_sdk.CallToolResult); ok {
		return ctr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(err)
	}
	return &mcp_sdk.CallToolResult{
		Content: []mcp_sdk.Content{&mcp_sdk.TextContent{Text: string(data)}},
	}
}

// marshalIndent renders a resource's value as pretty-printed JSON, the
// shape callers reading resource://... text contents expect.
func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// errorBody is the JSON payload of a failed tool call (spec §4.6: "errors
// set isError=true and carry {error, error_detail?}").
type errorBody struct {
	Error       string `json:"error"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// ErrorResult converts a handler error into the isError=true envelope,
// classifying it through mcperr.Sanitize first, which masks errors that
// match its sensitive or internal patterns and passes any other error's
// text through, truncated.
func ErrorResult(err error) *mcp_sdk.CallToolResult {
	e := mcperr.Sanitize("tool_call", err)
	body := errorBody{Error: string(e.Kind), ErrorDetail: e.Message}
	data, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		data = []byte(`{"error":"Unavailable","error_detail":"an internal error occurred"}`)
	}
	return &mcp_sdk.CallToolResult{
		Content: []mcp_sdk.Content{&mcp_sdk.TextContent{Text: string(data)}},
		IsError: true,
	}
}
