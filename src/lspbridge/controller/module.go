package controller

import (
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/bridge"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/diagnostics"
	docsync "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/doc-sync"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(bridge.New),
	fx.Provide(diagnostics.New),
	fx.Provide(docsync.New),
)
