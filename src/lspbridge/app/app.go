package app

import (
	"context"
	"time"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/handler"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/clock"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/core"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/executor"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/fs"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/websocketfx"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/workspace"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
)

// Module defines the lsp-bridge application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	websocketfx.Module,
	fs.Module,
	executor.Module,
	clock.Module,
	workspace.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "lsp-bridge",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvProduction,
			RuntimeEnvironment: EnvProduction,
		}
	}),
)
