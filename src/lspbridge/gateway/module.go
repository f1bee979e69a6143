package gateway

import (
	browserclient "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/browser-client"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/formatter"
	languageserver "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/language-server"
	"go.uber.org/fx"
)

// Module provides the outbound gateways: the analysis server supervisor, the formatter and the browser clients.
var Module = fx.Options(
	fx.Provide(languageserver.New),
	fx.Provide(formatter.New),
	fx.Provide(browserclient.New),
)
