package languageserver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/clock"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_defaultShutdownTimeout = 2 * time.Second
	_defaultKillGrace       = 2 * time.Second
)

// Server is a handle to one running analysis server and the RPC channel bound to its stdio.
type Server interface {
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context) error
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *entity.DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error
	Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error)
	Completion(ctx context.Context, params *entity.CompletionParams) (*protocol.CompletionList, error)

	// Terminate asks the server to shut down, then kills it if it has not exited within the grace period.
	// Only the first call does any work; later calls return nil.
	Terminate(ctx context.Context) error
	// Done is closed after the process has exited and the channel has been closed.
	Done() <-chan struct{}
}

// Process is the OS-level half of a Server.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	// Kill forcibly stops the process. Killing an exited process is not an error.
	Kill() error
}

// Options tune a Server.
type Options struct {
	Logger          *zap.SugaredLogger
	Stats           tally.Scope
	Clock           clock.Clock
	ShutdownTimeout time.Duration
	KillGrace       time.Duration
}

type server struct {
	channel *Channel
	proc    Process
	logger  *zap.SugaredLogger
	stats   tally.Scope
	clock   clock.Clock

	shutdownTimeout time.Duration
	killGrace       time.Duration

	terminateOnce sync.Once
	done          chan struct{}
}

// Attach binds a started process and its stdio stream to a new Server.
// handler receives every message the analysis server sends to the bridge.
func Attach(proc Process, stream io.ReadWriteCloser, handler jsonrpc2.Handler, opts Options) Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Stats == nil {
		opts.Stats = tally.NoopScope
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = _defaultShutdownTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = _defaultKillGrace
	}

	s := &server{
		channel:         NewChannel(jsonrpc2.NewConn(jsonrpc2.NewStream(stream))),
		proc:            proc,
		logger:          opts.Logger,
		stats:           opts.Stats,
		clock:           opts.Clock,
		shutdownTimeout: opts.ShutdownTimeout,
		killGrace:       opts.KillGrace,
		done:            make(chan struct{}),
	}
	s.channel.Go(context.Background(), handler)
	go s.observe()
	return s
}

// observe closes the channel as soon as the process exits, so nothing waits on a dead server.
func (s *server) observe() {
	err := s.proc.Wait()
	s.channel.Close()
	s.stats.Counter("exits").Inc(1)
	if err != nil {
		s.logger.Infow("analysis server exited", zap.Error(err))
	} else {
		s.logger.Info("analysis server exited")
	}
	close(s.done)
}

func (s *server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	var result protocol.InitializeResult
	if err := s.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *server) Initialized(ctx context.Context) error {
	return s.notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{})
}

func (s *server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	return s.notify(ctx, protocol.MethodTextDocumentDidOpen, params)
}

func (s *server) DidChange(ctx context.Context, params *entity.DidChangeTextDocumentParams) error {
	return s.notify(ctx, protocol.MethodTextDocumentDidChange, params)
}

func (s *server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	return s.notify(ctx, protocol.MethodTextDocumentDidClose, params)
}

// Hover returns nil without error when the server has no hover information.
func (s *server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	var result *protocol.Hover
	if err := s.call(ctx, protocol.MethodTextDocumentHover, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Completion returns nil without error when the server has no candidates.
func (s *server) Completion(ctx context.Context, params *entity.CompletionParams) (*protocol.CompletionList, error) {
	var result *protocol.CompletionList
	if err := s.call(ctx, protocol.MethodTextDocumentCompletion, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *server) Terminate(ctx context.Context) error {
	var err error
	s.terminateOnce.Do(func() {
		err = s.terminate(ctx)
	})
	return err
}

func (s *server) terminate(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	// A server that stopped reading its input blocks our writes whatever the context says,
	// so the exchange may still be stuck when the kill below closes the stream under it.
	exchanged := make(chan struct{})
	go func() {
		defer close(exchanged)
		s.requestExit(ctx)
	}()

	select {
	case <-s.done:
		return nil
	case <-exchanged:
		select {
		case <-s.done:
			return nil
		case <-s.clock.After(s.killGrace):
		case <-ctx.Done():
		}
	case <-s.clock.After(s.shutdownTimeout + s.killGrace):
		s.logger.Warn("analysis server is not reading its input")
	case <-ctx.Done():
	}

	var errs error
	s.stats.Counter("force_kills").Inc(1)
	s.logger.Warn("analysis server did not exit after shutdown, killing it")
	if err := s.proc.Kill(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("killing analysis server: %w", err))
	}
	// Kill may not have taken effect yet; the channel must not outlive this call either way.
	errs = multierr.Append(errs, s.channel.Close())

	select {
	case <-s.done:
	case <-s.clock.After(s.killGrace):
		errs = multierr.Append(errs, fmt.Errorf("analysis server did not exit within %s of being killed", s.killGrace))
	}
	return errs
}

// requestExit sends shutdown followed by exit.
func (s *server) requestExit(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.call(shutdownCtx, protocol.MethodShutdown, nil, nil); err != nil {
		s.logger.Debugw("shutdown request failed", zap.Error(err))
	}
	if err := s.notify(ctx, protocol.MethodExit, nil); err != nil {
		s.logger.Debugw("exit notification failed", zap.Error(err))
	}
}

func (s *server) Done() <-chan struct{} {
	return s.done
}

func (s *server) call(ctx context.Context, method string, params, result interface{}) error {
	if err := protocol.Call(ctx, s.channel, method, params, result); err != nil {
		if bridgeerrors.IsChannelClosed(err) {
			return err
		}
		return &bridgeerrors.ProtocolError{Method: method, Err: err}
	}
	return nil
}

func (s *server) notify(ctx context.Context, method string, params interface{}) error {
	if err := s.channel.Notify(ctx, method, params); err != nil {
		if bridgeerrors.IsChannelClosed(err) {
			return err
		}
		return &bridgeerrors.ProtocolError{Method: method, Err: err}
	}
	return nil
}
