package main

import (
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/app"
	"go.uber.org/fx"
)

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

func main() {
	fx.New(opts()).Run()
}
