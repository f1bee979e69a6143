package mapper

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/tidwall/gjson"
)

type fieldKind int

const (
	_stringField fieldKind = iota
	_integerField
	_coordinateField
)

type requiredField struct {
	name string
	kind fieldKind
}

var (
	_sessionField = requiredField{"sessionId", _stringField}
	_codeField    = requiredField{"code", _stringField}
	_idField      = requiredField{"id", _integerField}
	_rowField     = requiredField{"row", _coordinateField}
	_columnField  = requiredField{"column", _coordinateField}
)

var _clientMessageSchema = map[entity.ClientMethod]struct {
	fields []requiredField
	new    func() entity.ClientMessage
}{
	entity.MethodDidOpen: {
		fields: []requiredField{_codeField, _sessionField},
		new:    func() entity.ClientMessage { return &entity.DidOpenMessage{} },
	},
	entity.MethodDidChange: {
		fields: []requiredField{_codeField, _sessionField},
		new:    func() entity.ClientMessage { return &entity.DidChangeMessage{} },
	},
	entity.MethodDidClose: {
		fields: []requiredField{_sessionField},
		new:    func() entity.ClientMessage { return &entity.DidCloseMessage{} },
	},
	entity.MethodHover: {
		fields: []requiredField{_idField, _rowField, _columnField, _sessionField},
		new:    func() entity.ClientMessage { return &entity.HoverMessage{} },
	},
	entity.MethodCompletion: {
		fields: []requiredField{_idField, _rowField, _columnField, _sessionField},
		new:    func() entity.ClientMessage { return &entity.CompletionMessage{} },
	},
	entity.MethodFormat: {
		fields: []requiredField{_codeField},
		new:    func() entity.ClientMessage { return &entity.FormatMessage{} },
	},
}

// DecodeClientMessage decodes a text frame sent by the browser client into its typed message.
// Every failure is a *errors.ClientMessageError.
func DecodeClientMessage(data []byte) (entity.ClientMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, &errors.ClientMessageError{Reason: "malformed json"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &errors.ClientMessageError{Reason: "message is not an object"}
	}

	method := root.Get("method")
	if method.Type != gjson.String {
		return nil, &errors.ClientMessageError{Reason: "missing method"}
	}

	schema, ok := _clientMessageSchema[entity.ClientMethod(method.Str)]
	if !ok {
		return nil, &errors.ClientMessageError{Method: method.Str, Reason: "unknown method"}
	}

	for _, field := range schema.fields {
		if err := checkField(root, field); err != nil {
			return nil, &errors.ClientMessageError{Method: method.Str, Reason: err.Error()}
		}
	}

	msg := schema.new()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &errors.ClientMessageError{Method: method.Str, Reason: err.Error()}
	}
	return msg, nil
}

func checkField(root gjson.Result, field requiredField) error {
	value := root.Get(field.name)
	if !value.Exists() {
		return fmt.Errorf("missing %s", field.name)
	}

	switch field.kind {
	case _stringField:
		if value.Type != gjson.String {
			return fmt.Errorf("%s must be a string", field.name)
		}
	case _integerField, _coordinateField:
		if value.Type != gjson.Number {
			return fmt.Errorf("%s must be a number", field.name)
		}
		if value.Num != math.Trunc(value.Num) || math.Abs(value.Num) > math.MaxInt32 {
			return fmt.Errorf("%s must be an integer", field.name)
		}
		if field.kind == _coordinateField && value.Num < 0 {
			return fmt.Errorf("%s must not be negative", field.name)
		}
	}
	return nil
}
