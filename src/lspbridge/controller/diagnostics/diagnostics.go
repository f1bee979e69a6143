package diagnostics

import (
	"net/url"
	"path/filepath"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/mapper"
	"github.com/uber-go/tally"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _nameKey = "diagnostics"

// Controller decides which diagnostics pushes reach the browser client.
type Controller interface {
	// Forward returns the client notification for a push about documentPath.
	// It returns false for pushes about any other file, which must be dropped.
	Forward(documentPath string, params *protocol.PublishDiagnosticsParams) (*entity.DiagnosticsNotification, bool)
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type controller struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
}

// New creates a new controller for diagnostics forwarding.
func New(p Params) Controller {
	return &controller{
		logger: p.Logger.With("controller", _nameKey),
		stats:  p.Stats.SubScope(_nameKey),
	}
}

func (c *controller) Forward(documentPath string, params *protocol.PublishDiagnosticsParams) (*entity.DiagnosticsNotification, bool) {
	if params == nil || !isDocument(params.URI, documentPath) {
		c.stats.Counter("dropped").Inc(1)
		if params != nil {
			c.logger.Debugw("dropping diagnostics for unmanaged file", "uri", string(params.URI))
		}
		return nil, false
	}

	c.stats.Counter("forwarded").Inc(1)
	return mapper.DiagnosticsNotification(params), true
}

// isDocument compares the local path of a file URI with documentPath.
// URIs that do not parse, carry a host, or use another scheme never match.
func isDocument(docURI protocol.DocumentURI, documentPath string) bool {
	u, err := url.ParseRequestURI(string(docURI))
	if err != nil || u.Scheme != uri.FileScheme || u.Host != "" {
		return false
	}
	return filepath.FromSlash(u.Path) == documentPath
}
