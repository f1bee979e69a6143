// Package factory builds values for tests.
package factory

import (
	"encoding/json"
	"math/rand"

	"github.com/gofrs/uuid"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// ClientFrame encodes a browser client message with the given method and fields.
func ClientFrame(method entity.ClientMethod, fields map[string]interface{}) []byte {
	envelope := map[string]interface{}{"method": string(method)}
	for k, v := range fields {
		envelope[k] = v
	}
	data, _ := json.Marshal(envelope)
	return data
}

// PositionMessage returns a request at a random zero-based position.
func PositionMessage(id int) entity.PositionMessage {
	return entity.PositionMessage{
		ID:        id,
		Row:       rand.Intn(100),
		Column:    rand.Intn(120),
		SessionID: UUID().String(),
	}
}
