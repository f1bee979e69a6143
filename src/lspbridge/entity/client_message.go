package entity

import (
	"go.lsp.dev/protocol"
)

// ClientMethod names a message of the browser-facing protocol.
type ClientMethod string

// Methods accepted from, or sent to, the browser client.
const (
	MethodDidOpen     ClientMethod = "didOpen"
	MethodDidChange   ClientMethod = "didChange"
	MethodDidClose    ClientMethod = "didClose"
	MethodHover       ClientMethod = "hover"
	MethodCompletion  ClientMethod = "completion"
	MethodFormat      ClientMethod = "format"
	MethodDiagnostics ClientMethod = "diagnostics"
)

// ClientMessage is an inbound message decoded from the browser client.
type ClientMessage interface {
	Method() ClientMethod
}

// DidOpenMessage carries the full initial source of the managed document.
type DidOpenMessage struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

// Method implements ClientMessage.
func (*DidOpenMessage) Method() ClientMethod { return MethodDidOpen }

// DidChangeMessage carries the full replacement source of the managed document.
type DidChangeMessage struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

// Method implements ClientMessage.
func (*DidChangeMessage) Method() ClientMethod { return MethodDidChange }

// DidCloseMessage closes the managed document.
type DidCloseMessage struct {
	SessionID string `json:"sessionId"`
}

// Method implements ClientMessage.
func (*DidCloseMessage) Method() ClientMethod { return MethodDidClose }

// PositionMessage is a request at a zero-based (row, column) in the managed document.
type PositionMessage struct {
	ID        int    `json:"id"`
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	SessionID string `json:"sessionId"`
}

// HoverMessage requests hover information.
type HoverMessage struct {
	PositionMessage
}

// Method implements ClientMessage.
func (*HoverMessage) Method() ClientMethod { return MethodHover }

// CompletionMessage requests completion candidates.
type CompletionMessage struct {
	PositionMessage
}

// Method implements ClientMessage.
func (*CompletionMessage) Method() ClientMethod { return MethodCompletion }

// FormatMessage requests formatting of arbitrary source text.
type FormatMessage struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

// Method implements ClientMessage.
func (*FormatMessage) Method() ClientMethod { return MethodFormat }

// ReplyPosition is a one-based position echoed back to the client.
type ReplyPosition struct {
	Line       int `json:"line"`
	UTF16Index int `json:"utf16index"`
}

// HoverReply answers a HoverMessage. A nil Value means no hover information.
type HoverReply struct {
	Method   ClientMethod    `json:"method"`
	ID       int             `json:"id"`
	Position ReplyPosition   `json:"position"`
	Value    *protocol.Hover `json:"value"`
}

// CompletionReply answers a CompletionMessage. A nil Value means no candidates.
type CompletionReply struct {
	Method   ClientMethod             `json:"method"`
	ID       int                      `json:"id"`
	Position ReplyPosition            `json:"position"`
	Value    *protocol.CompletionList `json:"value"`
}

// DiagnosticsNotification forwards a diagnostics push for the managed document.
type DiagnosticsNotification struct {
	Method ClientMethod                       `json:"method"`
	Value  *protocol.PublishDiagnosticsParams `json:"value"`
}

// FormatReply answers a FormatMessage.
type FormatReply struct {
	Method ClientMethod `json:"method"`
	Value  string       `json:"value"`
}
