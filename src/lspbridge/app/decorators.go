package app

import (
	"fmt"
	"os"
	"path"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

const (
	// EnvProduction indicates that the service is running as a deployed container.
	EnvProduction = "production"

	// EnvDevelopment indicates that the service is running on a developer machine.
	EnvDevelopment = "development"

	// Environment variables
	_envBridgeEnvironment = "LSPBRIDGE_ENVIRONMENT"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvProduction
	if os.Getenv(_envBridgeEnvironment) == EnvDevelopment {
		envValue = EnvDevelopment
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Env Context
	Cfg config.Provider
	FS  fs.BridgeFS
}

// decorateConfigProvider includes any steps that modify the config.Provider before it is used, or use its data for any startup related activities.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	combined, err := ensureLogFolder(p.Cfg, p.FS)
	if err != nil {
		return nil, fmt.Errorf("ensuring log folder: %v", err)
	}

	combined, err = ensureScratchRoot(combined, p.FS)
	if err != nil {
		return nil, fmt.Errorf("ensuring scratch root: %v", err)
	}

	return combined, nil
}

// Ensure that all configured logging output directories exist or create if necessary.
func ensureLogFolder(cfg config.Provider, fs fs.BridgeFS) (config.Provider, error) {
	var c zap.Config
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return nil, fmt.Errorf("loading logging config: %v", err)
	}

	for _, outputPath := range c.OutputPaths {
		if outputPath == "stdout" || outputPath == "stderr" {
			continue
		}
		dir := path.Dir(outputPath)
		if err := fs.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("creating logging directory: %v", err)
		}
	}

	return cfg, nil
}

// Ensure that the configured workspace scratch root exists. An unset root falls back to the OS temp directory.
func ensureScratchRoot(cfg config.Provider, fs fs.BridgeFS) (config.Provider, error) {
	var root string
	if err := cfg.Get("workspace.scratchRoot").Populate(&root); err != nil {
		return nil, fmt.Errorf("loading workspace config: %v", err)
	}
	if root == "" {
		return cfg, nil
	}

	if err := fs.MkdirAll(root); err != nil {
		return nil, fmt.Errorf("creating scratch root: %v", err)
	}
	return cfg, nil
}
