package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/factory"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected entity.ClientMessage
	}{
		{
			name:     "didOpen",
			data:     `{"method":"didOpen","code":"let x = 1","sessionId":"s1"}`,
			expected: &entity.DidOpenMessage{Code: "let x = 1", SessionID: "s1"},
		},
		{
			name:     "didChange",
			data:     `{"method":"didChange","code":"let x = 2","sessionId":"s1"}`,
			expected: &entity.DidChangeMessage{Code: "let x = 2", SessionID: "s1"},
		},
		{
			name:     "didClose",
			data:     `{"method":"didClose","sessionId":"s1"}`,
			expected: &entity.DidCloseMessage{SessionID: "s1"},
		},
		{
			name: "hover",
			data: `{"method":"hover","id":1,"row":0,"column":4,"sessionId":"s1"}`,
			expected: &entity.HoverMessage{
				PositionMessage: entity.PositionMessage{ID: 1, Row: 0, Column: 4, SessionID: "s1"},
			},
		},
		{
			name: "completion",
			data: `{"method":"completion","id":7,"row":3,"column":12,"sessionId":"s1"}`,
			expected: &entity.CompletionMessage{
				PositionMessage: entity.PositionMessage{ID: 7, Row: 3, Column: 12, SessionID: "s1"},
			},
		},
		{
			name:     "format without session",
			data:     `{"method":"format","code":"let  x=1"}`,
			expected: &entity.FormatMessage{Code: "let  x=1"},
		},
		{
			name:     "field order does not matter",
			data:     `{"sessionId":"s1","code":"","method":"didOpen"}`,
			expected: &entity.DidOpenMessage{Code: "", SessionID: "s1"},
		},
		{
			name: "negative request id",
			data: `{"method":"hover","id":-3,"row":1,"column":1,"sessionId":"s1"}`,
			expected: &entity.HoverMessage{
				PositionMessage: entity.PositionMessage{ID: -3, Row: 1, Column: 1, SessionID: "s1"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeClientMessage([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, msg)
			assert.Equal(t, tt.expected.Method(), msg.Method())
		})
	}
}

func TestDecodeClientMessageErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		method string
		reason string
	}{
		{
			name:   "malformed json",
			data:   `{"method":"hover",`,
			reason: "malformed json",
		},
		{
			name:   "not an object",
			data:   `["hover"]`,
			reason: "message is not an object",
		},
		{
			name:   "missing method",
			data:   `{"code":"x"}`,
			reason: "missing method",
		},
		{
			name:   "method is not a string",
			data:   `{"method":3}`,
			reason: "missing method",
		},
		{
			name:   "unknown method",
			data:   `{"method":"rename","sessionId":"s1"}`,
			method: "rename",
			reason: "unknown method",
		},
		{
			name:   "didOpen without code",
			data:   `{"method":"didOpen","sessionId":"s1"}`,
			method: "didOpen",
			reason: "missing code",
		},
		{
			name:   "didChange with numeric code",
			data:   `{"method":"didChange","code":1,"sessionId":"s1"}`,
			method: "didChange",
			reason: "code must be a string",
		},
		{
			name:   "didClose without session",
			data:   `{"method":"didClose"}`,
			method: "didClose",
			reason: "missing sessionId",
		},
		{
			name:   "hover without row",
			data:   `{"method":"hover","id":1,"column":4,"sessionId":"s1"}`,
			method: "hover",
			reason: "missing row",
		},
		{
			name:   "hover with negative column",
			data:   `{"method":"hover","id":1,"row":0,"column":-1,"sessionId":"s1"}`,
			method: "hover",
			reason: "column must not be negative",
		},
		{
			name:   "completion with fractional row",
			data:   `{"method":"completion","id":1,"row":1.5,"column":0,"sessionId":"s1"}`,
			method: "completion",
			reason: "row must be an integer",
		},
		{
			name:   "completion with string id",
			data:   `{"method":"completion","id":"1","row":1,"column":0,"sessionId":"s1"}`,
			method: "completion",
			reason: "id must be a number",
		},
		{
			name:   "format without code",
			data:   `{"method":"format"}`,
			method: "format",
			reason: "missing code",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeClientMessage([]byte(tt.data))
			assert.Nil(t, msg)
			require.True(t, errors.IsClientMessageError(err), "got %v", err)

			cmErr := err.(*errors.ClientMessageError)
			assert.Equal(t, tt.method, cmErr.Method)
			assert.Equal(t, tt.reason, cmErr.Reason)
		})
	}
}

func TestDecodeClientFrame(t *testing.T) {
	position := factory.PositionMessage(5)
	data := factory.ClientFrame(entity.MethodCompletion, map[string]interface{}{
		"id":        position.ID,
		"row":       position.Row,
		"column":    position.Column,
		"sessionId": position.SessionID,
	})

	msg, err := DecodeClientMessage(data)
	require.NoError(t, err)
	assert.Equal(t, &entity.CompletionMessage{PositionMessage: position}, msg)
}
