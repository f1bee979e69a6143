package entity

import (
	"go.lsp.dev/protocol"
)

// LanguageSwift is the language identifier sent for the managed document.
const LanguageSwift protocol.LanguageIdentifier = "swift"

// FullTextChange replaces the whole document. Without a range the server treats it as full sync.
type FullTextChange struct {
	Text string `json:"text"`
}

// DidChangeTextDocumentParams is textDocument/didChange restricted to full-document sync.
type DidChangeTextDocumentParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []FullTextChange                         `json:"contentChanges"`
}

// SourceKitCompletionOptions are sourcekit-lsp extensions to textDocument/completion.
type SourceKitCompletionOptions struct {
	ServerSideFiltering bool `json:"serverSideFiltering"`
	MaxResults          int  `json:"maxResults"`
}

// CompletionParams is textDocument/completion with the sourcekit-lsp options attached.
type CompletionParams struct {
	protocol.CompletionParams
	SourceKitLSPOptions *SourceKitCompletionOptions `json:"sourcekitlspOptions,omitempty"`
}
