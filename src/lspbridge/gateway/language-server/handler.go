package languageserver

import (
	"context"
	"encoding/json"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// DiagnosticsFunc receives diagnostics pushed by the analysis server.
// It runs on the channel's read loop and must not block.
type DiagnosticsFunc func(params *protocol.PublishDiagnosticsParams)

// NewClientHandler returns the handler for messages the analysis server sends to the bridge.
// Requests the bridge has no use for are acknowledged with an empty result so the server never stalls on them.
func NewClientHandler(logger *zap.SugaredLogger, onDiagnostics DiagnosticsFunc) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodTextDocumentPublishDiagnostics:
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				logger.Warnw("dropping malformed diagnostics", zap.Error(err))
				return reply(ctx, nil, nil)
			}
			onDiagnostics(&params)
			return reply(ctx, nil, nil)

		case protocol.MethodWindowLogMessage,
			protocol.MethodWindowShowMessage,
			protocol.MethodTelemetryEvent,
			protocol.MethodProgress:
			logger.Debugw("analysis server message", "method", req.Method(), "params", string(req.Params()))
			return reply(ctx, nil, nil)

		case protocol.MethodWorkDoneProgressCreate,
			protocol.MethodClientRegisterCapability,
			protocol.MethodClientUnregisterCapability,
			protocol.MethodWindowShowMessageRequest,
			protocol.MethodWorkspaceConfiguration:
			return reply(ctx, nil, nil)

		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}
