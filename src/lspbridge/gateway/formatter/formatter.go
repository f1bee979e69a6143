// Package formatter runs swift-format over client source text.
package formatter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/executor"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKey = "formatter"
	_nameKey   = "formatter"

	_defaultTimeout = 10 * time.Second
)

// Gateway formats source text with an external formatter.
type Gateway interface {
	// Format returns the formatted source. When the formatter cannot run, fails, times out
	// or produces output that is not valid UTF-8, the input is returned unchanged.
	Format(ctx context.Context, source string) string
}

// Config is the formatter section of the service configuration.
type Config struct {
	Path          string   `yaml:"path"`
	Args          []string `yaml:"args"`
	TimeoutMillis int      `yaml:"timeoutMillis"`
}

// Params are inbound parameters to initialize the gateway.
type Params struct {
	fx.In

	Config   config.Provider
	Executor executor.Executor
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
}

type gateway struct {
	path     string
	args     []string
	timeout  time.Duration
	executor executor.Executor
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// New returns a Gateway configured from the formatter section.
func New(p Params) (Gateway, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%s.path must be set", _configKey)
	}
	return NewWithConfig(cfg, p.Executor, p.Logger, p.Stats), nil
}

// NewWithConfig returns a Gateway for an explicit configuration.
func NewWithConfig(cfg Config, exec executor.Executor, logger *zap.SugaredLogger, stats tally.Scope) Gateway {
	timeout := time.Duration(cfg.TimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = _defaultTimeout
	}
	return &gateway{
		path:     cfg.Path,
		args:     cfg.Args,
		timeout:  timeout,
		executor: exec,
		logger:   logger.With("gateway", _nameKey),
		stats:    stats.SubScope(_nameKey),
	}
}

func (g *gateway) Format(ctx context.Context, source string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sw := g.stats.Timer("latency").Start()
	defer sw.Stop()

	cmd := exec.CommandContext(ctx, g.path, g.args...)
	cmd.Stdin = strings.NewReader(source)

	stdout, stderr, exitCode, err := g.executor.Run(cmd)
	switch {
	case ctx.Err() != nil:
		g.fallback("timeout", "formatter did not finish in time", "timeout", g.timeout)
		return source
	case err != nil:
		g.fallback("error", "formatter failed to run", "error", err, "exitCode", exitCode)
		return source
	case exitCode != 0:
		g.fallback("nonzero_exit", "formatter exited with an error", "exitCode", exitCode, "stderr", stderr)
		return source
	case !utf8.ValidString(stdout):
		g.fallback("invalid_output", "formatter output is not valid UTF-8")
		return source
	}

	g.stats.Counter("formatted").Inc(1)
	return stdout
}

func (g *gateway) fallback(reason, msg string, keysAndValues ...interface{}) {
	g.stats.Tagged(map[string]string{"reason": reason}).Counter("fallbacks").Inc(1)
	g.logger.Warnw(msg, keysAndValues...)
}
