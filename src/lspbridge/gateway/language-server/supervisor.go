// Package languageserver launches and talks to the per-session analysis server (sourcekit-lsp).
package languageserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/gofrs/uuid"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/clock"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/logwriter"
	"github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	_configKey = "languageServer"
	_nameKey   = "language_server"

	_darwinExecutable  = "/Applications/Xcode.app/Contents/Developer/Toolchains/XcodeDefault.xctoolchain/usr/bin/sourcekit-lsp"
	_defaultExecutable = "/usr/bin/sourcekit-lsp"
)

// Supervisor starts analysis servers, one per session.
type Supervisor interface {
	// Launch starts a server in the workspace and returns a handle whose channel is already serving.
	Launch(ctx context.Context, p LaunchParams) (Server, error)
}

// LaunchParams describe a single server launch.
type LaunchParams struct {
	SessionID     uuid.UUID
	WorkspacePath string
	// Handler receives notifications and requests sent by the server.
	Handler jsonrpc2.Handler
}

// Config is the languageServer section of the service configuration.
type Config struct {
	// Path overrides the platform default executable.
	Path                  string   `yaml:"path"`
	Args                  []string `yaml:"args"`
	ShutdownTimeoutMillis int      `yaml:"shutdownTimeoutMillis"`
	KillGraceMillis       int      `yaml:"killGraceMillis"`
}

// Params are the dependencies of New.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	Stats  tally.Scope
	Clock  clock.Clock
}

type supervisor struct {
	path            string
	args            []string
	shutdownTimeout time.Duration
	killGrace       time.Duration

	logger *zap.SugaredLogger
	stats  tally.Scope
	clock  clock.Clock
}

// New creates a Supervisor from the languageServer configuration.
func New(p Params) (Supervisor, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	return NewWithConfig(cfg, p.Logger, p.Stats, p.Clock), nil
}

// NewWithConfig creates a Supervisor from an explicit configuration.
func NewWithConfig(cfg Config, logger *zap.SugaredLogger, stats tally.Scope, clk clock.Clock) Supervisor {
	return &supervisor{
		path:            resolveExecutable(cfg.Path, runtime.GOOS),
		args:            cfg.Args,
		shutdownTimeout: time.Duration(cfg.ShutdownTimeoutMillis) * time.Millisecond,
		killGrace:       time.Duration(cfg.KillGraceMillis) * time.Millisecond,
		logger:          logger.With("component", _nameKey),
		stats:           stats.SubScope(_nameKey),
		clock:           clk,
	}
}

func resolveExecutable(configured, goos string) string {
	if configured != "" {
		return configured
	}
	if goos == "darwin" {
		return _darwinExecutable
	}
	return _defaultExecutable
}

func (s *supervisor) Launch(ctx context.Context, p LaunchParams) (Server, error) {
	logger := s.logger.With("session", p.SessionID.String())

	cmd := exec.Command(s.path, s.args...)
	cmd.Dir = p.WorkspacePath
	// Bounds how long Wait blocks on stderr copying if a child process inherits the pipe.
	cmd.WaitDelay = s.graceOrDefault()

	stderr := logwriter.New(logger.Named("stderr"), zapcore.DebugLevel)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, s.launchFailed(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, s.launchFailed(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, s.launchFailed(err)
	}

	s.stats.Counter("launches").Inc(1)
	logger.Infow("analysis server started", "pid", cmd.Process.Pid, "path", s.path, "dir", cmd.Dir)

	return Attach(
		&execProcess{cmd: cmd, stderr: stderr},
		&duplex{reader: stdout, writer: stdin},
		p.Handler,
		Options{
			Logger:          logger,
			Stats:           s.stats,
			Clock:           s.clock,
			ShutdownTimeout: s.shutdownTimeout,
			KillGrace:       s.killGrace,
		},
	), nil
}

func (s *supervisor) launchFailed(err error) error {
	s.stats.Counter("launch_failures").Inc(1)
	return &bridgeerrors.LaunchError{Path: s.path, Err: err}
}

func (s *supervisor) graceOrDefault() time.Duration {
	if s.killGrace > 0 {
		return s.killGrace
	}
	return _defaultKillGrace
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr *logwriter.Writer
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.stderr.Close()
	return err
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
