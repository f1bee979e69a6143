package mapper

import (
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/model"
)

// SessionToModel maps a Session entity to its model equivalent.
func SessionToModel(f *entity.Session) *model.Session {
	return &model.Session{
		UUID:          f.UUID,
		WorkspacePath: f.WorkspacePath,
		DocumentPath:  f.DocumentPath,
		State:         f.State.String(),
		CreatedAt:     f.CreatedAt,
		Closer:        f.Closer,
	}
}

// ModelToSession maps a model Session to its entity equivalent.
func ModelToSession(f *model.Session) (*entity.Session, error) {
	state, err := entity.ParseSessionState(f.State)
	if err != nil {
		return nil, err
	}
	return &entity.Session{
		UUID:          f.UUID,
		WorkspacePath: f.WorkspacePath,
		DocumentPath:  f.DocumentPath,
		State:         state,
		CreatedAt:     f.CreatedAt,
		Closer:        f.Closer,
	}, nil
}
