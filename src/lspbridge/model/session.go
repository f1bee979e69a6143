// Package model contains the repository layer representations of domain types.
package model

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
)

// Session is the repository layer model for a live session bridge.
type Session struct {
	UUID          uuid.UUID
	WorkspacePath string
	DocumentPath  string
	State         string
	CreatedAt     time.Time
	Closer        entity.SessionCloser
}
