package mcp

import (
	"context"
	"encoding/json"

	"stockcast/internal/apperr"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// ResponseEnvelope wraps every tool result with the context an agent needs to present it.
type ResponseEnvelope struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
	Guidance []string `json:"guidance,omitempty"`
	Chart    string   `json:"chart,omitempty"`
}

// ToolError is the body of a failed tool call.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WrapResponse builds a ResponseEnvelope.
func WrapResponse(data any, warnings []string, guidance []string) *ResponseEnvelope {
	return &ResponseEnvelope{Data: data, Warnings: warnings, Guidance: guidance}
}

// NewToolError maps an error to its stable code. Unknown errors become internal errors and
// their cause is logged, never returned.
func NewToolError(tool string, err error) ToolError {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(tool, err)
	}
	if ae.Kind == apperr.KindInternal {
		log.Error().Err(err).Str("tool", tool).Msg("Tool failed with an internal error")
		return ToolError{Code: ae.Code(), Message: "An internal error occurred. Check the server log for details."}
	}

	te := ToolError{Code: ae.Code(), Message: ae.Error()}
	if d := ae.Details(); len(d) > 0 {
		te.Details = d
	}
	return te
}

func textResult(v any, isError bool) *sdk.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal tool result")
		out = []byte(`{"code":"INTERNAL_ERROR","message":"failed to encode result"}`)
		isError = true
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(out)}},
		IsError: isError,
	}
}

// toolHandler adapts a handler returning (data, error) to the SDK. Domain errors are reported
// as tool results with IsError set so the agent can read the code and react.
func toolHandler[In any](tool string, fn func(ctx context.Context, in In) (any, error)) sdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
		data, err := fn(ctx, in)
		if err != nil {
			te := NewToolError(tool, err)
			log.Warn().Str("tool", tool).Str("code", te.Code).Msg(te.Message)
			return textResult(te, true), nil, nil
		}
		return textResult(data, false), nil, nil
	}
}
