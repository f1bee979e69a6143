package handler

import (
	controller "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller"
	bridgectl "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/bridge"
	handler "github.com/swiftfiddle/lsp-bridge/src/lspbridge/handler/bridge"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/repository/session"
	"go.uber.org/fx"
)

// Module provides the session bridge inbound into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(handler.New),
	fx.Invoke(func(h handler.Handler) {}),
	fx.Invoke(func(c bridgectl.Controller) {}),
)
