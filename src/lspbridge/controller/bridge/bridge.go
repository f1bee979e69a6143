// Package bridge implements the session bridges between browser clients and analysis servers.
package bridge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/diagnostics"
	docsync "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/doc-sync"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	browserclient "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/browser-client"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/formatter"
	languageserver "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/language-server"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/clock"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/workspace"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/repository/session"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	_configKey = "session"
	_nameKey   = "session"

	_defaultRequestTimeout = 30 * time.Second
	_defaultQueueSize      = 64
	_teardownTimeout       = 30 * time.Second

	_defaultLoopDrainTimeout = 2 * time.Second
)

// Controller creates and ends session bridges.
type Controller interface {
	// InitSession provisions a workspace, launches an analysis server for it and starts a session
	// that talks to the client over conn. On error the connection has already been closed.
	InitSession(ctx context.Context, conn browserclient.Conn) (Session, error)
	// EndSession tears down the session with the given id and waits until it is closed.
	EndSession(ctx context.Context, id uuid.UUID) error
	// Shutdown ends every live session.
	Shutdown(ctx context.Context) error
}

// Session is the connection-facing handle of a live session.
type Session interface {
	UUID() uuid.UUID
	// Receive queues one text frame from the client. It fails with ErrSessionClosing once teardown started.
	Receive(ctx context.Context, data []byte) error
	// ClientClosed reports that the client connection is gone and starts teardown.
	ClientClosed()
	// Done is closed once the session is Closed.
	Done() <-chan struct{}
}

// Config is the session section of the service configuration.
type Config struct {
	RequestTimeoutMillis int `yaml:"requestTimeoutMillis"`
	QueueSize            int `yaml:"queueSize"`
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Clock     clock.Clock

	Sessions    session.Repository
	Provisioner workspace.Provisioner
	Supervisor  languageserver.Supervisor
	Clients     browserclient.Gateway
	Formatter   formatter.Gateway
	DocSync     docsync.Controller
	Diagnostics diagnostics.Controller
}

type controller struct {
	requestTimeout   time.Duration
	queueSize        int
	loopDrainTimeout time.Duration

	logger *zap.SugaredLogger
	stats  tally.Scope
	clock  clock.Clock

	sessions    session.Repository
	provisioner workspace.Provisioner
	supervisor  languageserver.Supervisor
	clients     browserclient.Gateway
	formatter   formatter.Gateway
	docSync     docsync.Controller
	diagnostics diagnostics.Controller
}

// New constructs the session controller and registers the shutdown of live sessions with the lifecycle.
func New(p Params) (Controller, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	c := newController(cfg, p)
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: c.Shutdown,
		})
	}
	return c, nil
}

func newController(cfg Config, p Params) *controller {
	requestTimeout := time.Duration(cfg.RequestTimeoutMillis) * time.Millisecond
	if requestTimeout <= 0 {
		requestTimeout = _defaultRequestTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = _defaultQueueSize
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &controller{
		requestTimeout:   requestTimeout,
		queueSize:        queueSize,
		loopDrainTimeout: _defaultLoopDrainTimeout,
		logger:           p.Logger.With("controller", "bridge"),
		stats:            p.Stats.SubScope(_nameKey),
		clock:            clk,
		sessions:         p.Sessions,
		provisioner:      p.Provisioner,
		supervisor:       p.Supervisor,
		clients:          p.Clients,
		formatter:        p.Formatter,
		docSync:          p.DocSync,
		diagnostics:      p.Diagnostics,
	}
}

func (c *controller) InitSession(ctx context.Context, conn browserclient.Conn) (Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := newRuntimeSession(c, id)
	if err := c.clients.RegisterClient(ctx, id, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registering client: %w", err)
	}

	if err := c.sessions.Set(ctx, s.snapshot()); err != nil {
		return nil, c.abort(ctx, s, fmt.Errorf("recording session: %w", err))
	}

	ws, err := c.provisioner.Provision(ctx)
	if err != nil {
		return nil, c.abort(ctx, s, err)
	}

	server, err := c.supervisor.Launch(ctx, languageserver.LaunchParams{
		SessionID:     id,
		WorkspacePath: ws.Path,
		Handler:       languageserver.NewClientHandler(s.logger, s.onDiagnostics),
	})
	if err != nil {
		if tdErr := c.provisioner.Teardown(ctx, ws.Path); tdErr != nil {
			s.logger.Warnw("removing workspace after failed launch", zap.Error(tdErr))
		}
		return nil, c.abort(ctx, s, err)
	}

	s.attach(ws, server)
	s.transition(entity.StateProvisioned)

	c.stats.Counter("started").Inc(1)
	s.logger.Infow("session started", "workspace", ws.Path)
	s.start()
	if s.endRequestedDuringSetup() {
		s.beginClose(_reasonEnded)
	}
	return s, nil
}

// abort closes the client of a session that never started and forgets the session.
// Anyone waiting in Close is released.
func (c *controller) abort(ctx context.Context, s *runtimeSession, cause error) error {
	defer close(s.done)
	s.cancel()
	c.stats.Counter("init_failures").Inc(1)
	s.logger.Errorw("session setup failed", zap.Error(cause))

	if err := c.clients.Close(ctx, s.id, browserclient.CloseInternalError, "session setup failed"); err != nil {
		s.logger.Debugw("closing client after failed setup", zap.Error(err))
	}
	if err := c.sessions.Delete(ctx, s.id); err != nil {
		s.logger.Debugw("forgetting session after failed setup", zap.Error(err))
	}
	return cause
}

func (c *controller) EndSession(ctx context.Context, id uuid.UUID) error {
	s, err := c.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Closer == nil {
		return fmt.Errorf("session %s has no closer", id)
	}
	return s.Closer.Close(ctx)
}

func (c *controller) Shutdown(ctx context.Context) error {
	all, err := c.sessions.All(ctx)
	if err != nil {
		return err
	}
	if len(all) > 0 {
		c.logger.Infow("closing live sessions", "count", len(all))
	}

	// Every Close gets the caller's ctx; a failed close does not cancel the others.
	var g errgroup.Group
	for _, s := range all {
		s := s
		if s.Closer == nil {
			continue
		}
		g.Go(func() error {
			if err := s.Closer.Close(ctx); err != nil {
				return fmt.Errorf("closing session %s: %w", s.UUID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *controller) processID() int32 {
	return int32(os.Getpid())
}
