// Package languageservertest provides an in-memory analysis server for tests.
package languageservertest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	languageserver "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/language-server"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Message is a request or notification received by the fake server.
type Message struct {
	Method string
	Params json.RawMessage
}

// Process is a languageserver.Process that exits on demand.
type Process struct {
	once   sync.Once
	exited chan struct{}
	killed atomic.Bool
	// IgnoreExit keeps the process alive after an exit notification, forcing a kill.
	IgnoreExit bool
}

// NewProcess returns a running fake process.
func NewProcess() *Process {
	return &Process{exited: make(chan struct{})}
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	<-p.exited
	return nil
}

// Kill makes the process exit.
func (p *Process) Kill() error {
	p.killed.Store(true)
	p.Exit()
	return nil
}

// Exit makes the process exit as if it terminated on its own.
func (p *Process) Exit() {
	p.once.Do(func() { close(p.exited) })
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	return p.killed.Load()
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Server is a fake analysis server speaking JSON-RPC over an in-memory pipe.
type Server struct {
	Proc *Process

	// InitializeErr, when set, fails the initialize request.
	InitializeErr error
	// HoverFunc answers textDocument/hover. The default answers with a fixed markdown hover.
	HoverFunc func(params *protocol.HoverParams) (*protocol.Hover, error)
	// CompletionFunc answers textDocument/completion. The default answers with a single item.
	CompletionFunc func(params json.RawMessage) (*protocol.CompletionList, error)
	// DiagnosticsFunc returns the pushes sent after every didOpen and didChange.
	DiagnosticsFunc func(doc uri.URI, version int32) []*protocol.PublishDiagnosticsParams
	// HoverGate, when set, holds every hover reply until it is closed.
	HoverGate chan struct{}
	// ChangeGate, when set, stalls the read loop on every didChange until it is closed or the process exits.
	// Nothing sent to the server afterwards is read, so the bridge's writes block.
	ChangeGate chan struct{}

	mu       sync.Mutex
	received []Message
	conn     jsonrpc2.Conn
}

// NewServer returns a fake server with default behaviors.
func NewServer() *Server {
	return &Server{Proc: NewProcess()}
}

// Attach starts serving and returns the bridge-side handle, exactly as a Supervisor would.
func (s *Server) Attach(handler jsonrpc2.Handler, opts languageserver.Options) languageserver.Server {
	bridgeSide, serverSide := net.Pipe()

	s.mu.Lock()
	s.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(serverSide))
	s.mu.Unlock()
	s.conn.Go(context.Background(), s.handle)

	// The fake's stdio goes away with its process, like a real one.
	go func() {
		<-s.Proc.exited
		s.conn.Close()
	}()

	return languageserver.Attach(s.Proc, bridgeSide, handler, opts)
}

// Crash makes the process exit without a protocol shutdown.
func (s *Server) Crash() {
	s.Proc.Exit()
}

// Received returns a copy of every message received so far, in order.
func (s *Server) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.received...)
}

// Count returns how many messages with the given method were received.
func (s *Server) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.received {
		if m.Method == method {
			n++
		}
	}
	return n
}

// Params returns the params of every message with the given method, in order.
func (s *Server) Params(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, m := range s.received {
		if m.Method == method {
			out = append(out, m.Params)
		}
	}
	return out
}

// Publish pushes diagnostics to the bridge.
func (s *Server) Publish(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	return s.conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, params)
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.mu.Lock()
	s.received = append(s.received, Message{Method: req.Method(), Params: append(json.RawMessage(nil), req.Params()...)})
	s.mu.Unlock()

	switch req.Method() {
	case protocol.MethodInitialize:
		if s.InitializeErr != nil {
			return reply(ctx, nil, s.InitializeErr)
		}
		return reply(ctx, &protocol.InitializeResult{
			ServerInfo: &protocol.ServerInfo{Name: "fake-sourcekit-lsp"},
		}, nil)

	case protocol.MethodShutdown:
		return reply(ctx, nil, nil)

	case protocol.MethodExit:
		if !s.Proc.IgnoreExit {
			s.Proc.Exit()
		}
		return nil

	case protocol.MethodTextDocumentHover:
		var params protocol.HoverParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, err)
		}
		answer := func() error {
			hover, err := s.hover(&params)
			return reply(ctx, hover, err)
		}
		if s.HoverGate != nil {
			go func() {
				<-s.HoverGate
				answer()
			}()
			return nil
		}
		return answer()

	case protocol.MethodTextDocumentCompletion:
		list, err := s.completion(req.Params())
		return reply(ctx, list, err)

	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err == nil {
			s.publishFor(ctx, params.TextDocument.URI, params.TextDocument.Version)
		}
		return nil

	case protocol.MethodTextDocumentDidChange:
		if s.ChangeGate != nil {
			select {
			case <-s.ChangeGate:
			case <-s.Proc.exited:
				return nil
			}
		}
		var params protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err == nil {
			s.publishFor(ctx, params.TextDocument.URI, params.TextDocument.Version)
		}
		return nil

	default:
		return reply(ctx, nil, nil)
	}
}

func (s *Server) hover(params *protocol.HoverParams) (*protocol.Hover, error) {
	if s.HoverFunc != nil {
		return s.HoverFunc(params)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: "```swift\nlet x: Int\n```"},
	}, nil
}

func (s *Server) completion(params json.RawMessage) (*protocol.CompletionList, error) {
	if s.CompletionFunc != nil {
		return s.CompletionFunc(params)
	}
	return &protocol.CompletionList{
		Items: []protocol.CompletionItem{{Label: "print(_:)"}},
	}, nil
}

func (s *Server) publishFor(ctx context.Context, doc uri.URI, version int32) {
	if s.DiagnosticsFunc == nil {
		return
	}
	for _, d := range s.DiagnosticsFunc(doc, version) {
		if err := s.Publish(ctx, d); err != nil {
			return
		}
	}
}

// Supervisor is a languageserver.Supervisor that launches fake servers.
type Supervisor struct {
	// NewServer builds the server for each launch. Defaults to NewServer.
	NewServer func() *Server
	// LaunchErr, when set, fails every launch.
	LaunchErr error
	// Options are passed to every attached server.
	Options languageserver.Options

	mu       sync.Mutex
	launched []*Server
	params   []languageserver.LaunchParams
}

var _ languageserver.Supervisor = (*Supervisor)(nil)

// Launch implements languageserver.Supervisor.
func (f *Supervisor) Launch(ctx context.Context, p languageserver.LaunchParams) (languageserver.Server, error) {
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}
	if p.Handler == nil {
		return nil, errors.New("launch without a handler")
	}

	newServer := f.NewServer
	if newServer == nil {
		newServer = NewServer
	}
	s := newServer()

	opts := f.Options
	if opts.KillGrace == 0 {
		opts.KillGrace = 200 * time.Millisecond
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = time.Second
	}

	f.mu.Lock()
	f.launched = append(f.launched, s)
	f.params = append(f.params, p)
	f.mu.Unlock()

	return s.Attach(p.Handler, opts), nil
}

// Launched returns every server launched so far.
func (f *Supervisor) Launched() []*Server {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Server(nil), f.launched...)
}

// LaunchParams returns the params of every launch so far.
func (f *Supervisor) LaunchParams() []languageserver.LaunchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]languageserver.LaunchParams(nil), f.params...)
}
