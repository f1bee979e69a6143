package mapper

import (
	"path/filepath"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const (
	_clientName           = "lsp-bridge"
	_completionMaxResults = 200
)

// InitializeParams builds the handshake for an analysis server rooted at the workspace.
func InitializeParams(ws *entity.Workspace, processID int32) *protocol.InitializeParams {
	root := uri.File(ws.Path)
	return &protocol.InitializeParams{
		ProcessID:  processID,
		ClientInfo: &protocol.ClientInfo{Name: _clientName},
		RootURI:    root,
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Completion: &protocol.CompletionTextDocumentClientCapabilities{
					CompletionItem: &protocol.CompletionTextDocumentClientCapabilitiesItem{
						SnippetSupport: true,
					},
				},
			},
		},
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{
				URI:  string(root),
				Name: filepath.Base(ws.Path),
			},
		},
	}
}

// DidOpenParams builds textDocument/didOpen for the managed document.
func DidOpenParams(documentPath string, version int32, text string) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri.File(documentPath),
			LanguageID: entity.LanguageSwift,
			Version:    version,
			Text:       text,
		},
	}
}

// DidChangeParams builds a full-document textDocument/didChange.
func DidChangeParams(documentPath string, version int32, text string) *entity.DidChangeTextDocumentParams {
	return &entity.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri.File(documentPath)},
			Version:                version,
		},
		ContentChanges: []entity.FullTextChange{{Text: text}},
	}
}

// DidCloseParams builds textDocument/didClose for the managed document.
func DidCloseParams(documentPath string) *protocol.DidCloseTextDocumentParams {
	return &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(documentPath)},
	}
}

// HoverParams builds textDocument/hover at the message's zero-based position.
func HoverParams(documentPath string, msg *entity.HoverMessage) *protocol.HoverParams {
	return &protocol.HoverParams{
		TextDocumentPositionParams: positionParams(documentPath, &msg.PositionMessage),
	}
}

// CompletionParams builds an invoked textDocument/completion with server-side filtering enabled.
func CompletionParams(documentPath string, msg *entity.CompletionMessage) *entity.CompletionParams {
	return &entity.CompletionParams{
		CompletionParams: protocol.CompletionParams{
			TextDocumentPositionParams: positionParams(documentPath, &msg.PositionMessage),
			Context: &protocol.CompletionContext{
				TriggerKind: protocol.CompletionTriggerKindInvoked,
			},
		},
		SourceKitLSPOptions: &entity.SourceKitCompletionOptions{
			ServerSideFiltering: true,
			MaxResults:          _completionMaxResults,
		},
	}
}

func positionParams(documentPath string, msg *entity.PositionMessage) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(documentPath)},
		Position: protocol.Position{
			Line:      uint32(msg.Row),
			Character: uint32(msg.Column),
		},
	}
}

// ReplyPositionFor converts a zero-based request position to the one-based position echoed to the client.
func ReplyPositionFor(msg *entity.PositionMessage) entity.ReplyPosition {
	return entity.ReplyPosition{
		Line:       msg.Row + 1,
		UTF16Index: msg.Column + 1,
	}
}

// HoverReply wraps a hover result. A nil hover is sent as null.
func HoverReply(msg *entity.HoverMessage, hover *protocol.Hover) *entity.HoverReply {
	return &entity.HoverReply{
		Method:   entity.MethodHover,
		ID:       msg.ID,
		Position: ReplyPositionFor(&msg.PositionMessage),
		Value:    hover,
	}
}

// CompletionReply wraps a completion result. A nil list is sent as null.
func CompletionReply(msg *entity.CompletionMessage, list *protocol.CompletionList) *entity.CompletionReply {
	return &entity.CompletionReply{
		Method:   entity.MethodCompletion,
		ID:       msg.ID,
		Position: ReplyPositionFor(&msg.PositionMessage),
		Value:    list,
	}
}

// DiagnosticsNotification wraps a diagnostics push for the client.
func DiagnosticsNotification(params *protocol.PublishDiagnosticsParams) *entity.DiagnosticsNotification {
	return &entity.DiagnosticsNotification{
		Method: entity.MethodDiagnostics,
		Value:  params,
	}
}

// FormatReply wraps formatter output.
func FormatReply(formatted string) *entity.FormatReply {
	return &entity.FormatReply{
		Method: entity.MethodFormat,
		Value:  formatted,
	}
}
