package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	docsync "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/doc-sync"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	browserclient "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/browser-client"
	languageserver "github.com/swiftfiddle/lsp-bridge/src/lspbridge/gateway/language-server"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type closeReason struct {
	code int
	text string
	tag  string
}

var (
	_reasonClientClosed    = closeReason{code: browserclient.CloseNormal, text: "client closed", tag: "client_closed"}
	_reasonProcessExited   = closeReason{code: browserclient.CloseInternalError, text: "analysis server exited", tag: "process_exited"}
	_reasonHandshakeFailed = closeReason{code: browserclient.CloseInternalError, text: "analysis server handshake failed", tag: "handshake_failed"}
	_reasonEnded           = closeReason{code: browserclient.CloseGoingAway, text: "session ended by server", tag: "ended"}
)

// runtimeSession bridges one browser client and one analysis server.
// Client messages and call results run one at a time on the session's task loop;
// everything the loop touches (the document, the pending buffer) belongs to it.
type runtimeSession struct {
	id        uuid.UUID
	createdAt time.Time
	c         *controller
	logger    *zap.SugaredLogger

	ws     *entity.Workspace
	server languageserver.Server
	doc    *docsync.Document

	tasks chan func()
	// Messages received while the handshake is in flight, replayed in order once Ready.
	pending []entity.ClientMessage

	// Pushes waiting for the loop, in arrival order. Every push is forwarded, none are merged.
	diagMu     sync.Mutex
	diagQueue  []*protocol.PublishDiagnosticsParams
	diagSignal chan struct{}

	stateMu sync.Mutex
	state   entity.SessionState
	// Set when Close arrives before setup finished; setup ends the session once it is running.
	endRequested bool

	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup

	closeOnce sync.Once
	reason    closeReason
	closing   chan struct{}
	loopDone  chan struct{}
	done      chan struct{}
}

func newRuntimeSession(c *controller, id uuid.UUID) *runtimeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &runtimeSession{
		id:         id,
		createdAt:  c.clock.Now(),
		c:          c,
		logger:     c.logger.With("session", id.String()),
		tasks:      make(chan func(), c.queueSize),
		diagSignal: make(chan struct{}, 1),
		state:      entity.StateCreated,
		ctx:        ctx,
		cancel:     cancel,
		closing:    make(chan struct{}),
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *runtimeSession) attach(ws *entity.Workspace, server languageserver.Server) {
	s.ws = ws
	s.server = server
	s.doc = s.c.docSync.NewDocument(ws)
}

func (s *runtimeSession) start() {
	go s.run()
	go s.watchProcess()
}

func (s *runtimeSession) UUID() uuid.UUID {
	return s.id
}

func (s *runtimeSession) Done() <-chan struct{} {
	return s.done
}

func (s *runtimeSession) State() entity.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *runtimeSession) snapshot() *entity.Session {
	f := &entity.Session{
		UUID:      s.id,
		State:     s.State(),
		CreatedAt: s.createdAt,
		Closer:    s,
	}
	if s.ws != nil {
		f.WorkspacePath = s.ws.Path
		f.DocumentPath = s.ws.DocumentPath
	}
	return f
}

// transition moves the session to next and records the new snapshot in the registry.
func (s *runtimeSession) transition(next entity.SessionState) bool {
	s.stateMu.Lock()
	prev := s.state
	if !prev.CanTransitionTo(next) {
		s.stateMu.Unlock()
		s.logger.Errorw("rejected session state transition", "from", prev.String(), "to", next.String())
		return false
	}
	s.state = next
	s.stateMu.Unlock()

	s.logger.Debugw("session state changed", "from", prev.String(), "to", next.String())
	if next != entity.StateClosed {
		if err := s.c.sessions.Set(context.Background(), s.snapshot()); err != nil {
			s.logger.Warnw("recording session state", zap.Error(err))
		}
	}
	return true
}

func (s *runtimeSession) endRequestedDuringSetup() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.endRequested
}

func (s *runtimeSession) Receive(ctx context.Context, data []byte) error {
	msg, err := mapper.DecodeClientMessage(data)
	if err != nil {
		s.c.stats.Counter("invalid_messages").Inc(1)
		s.logger.Warnw("ignoring client message", zap.Error(err))
		return nil
	}
	return s.post(ctx, func() { s.dispatch(msg) })
}

func (s *runtimeSession) ClientClosed() {
	s.beginClose(_reasonClientClosed)
}

// Close implements entity.SessionCloser. A session that is still being set up is ended as soon as setup finishes.
func (s *runtimeSession) Close(ctx context.Context) error {
	s.stateMu.Lock()
	starting := s.state == entity.StateCreated
	if starting {
		s.endRequested = true
	}
	s.stateMu.Unlock()

	if !starting {
		s.beginClose(_reasonEnded)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues a task on the loop. Tasks posted after teardown started are dropped.
func (s *runtimeSession) post(ctx context.Context, task func()) error {
	select {
	case <-s.closing:
		return bridgeerrors.ErrSessionClosing
	default:
	}

	select {
	case s.tasks <- task:
		return nil
	case <-s.closing:
		return bridgeerrors.ErrSessionClosing
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *runtimeSession) run() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.closing:
			return
		case task := <-s.tasks:
			task()
		case <-s.diagSignal:
			s.flushDiagnostics()
		}
	}
}

func (s *runtimeSession) watchProcess() {
	select {
	case <-s.server.Done():
		s.beginClose(_reasonProcessExited)
	case <-s.closing:
	}
}

func (s *runtimeSession) dispatch(msg entity.ClientMessage) {
	s.c.stats.Tagged(map[string]string{"method": string(msg.Method())}).Counter("messages").Inc(1)

	// Formatting does not involve the analysis server and is answered in every state.
	if m, ok := msg.(*entity.FormatMessage); ok {
		s.format(m)
		return
	}

	switch s.State() {
	case entity.StateProvisioned:
		if m, ok := msg.(*entity.DidOpenMessage); ok {
			s.initialize(m)
			return
		}
		s.handle(msg)
	case entity.StateInitializing:
		s.pending = append(s.pending, msg)
	case entity.StateReady:
		s.handle(msg)
	}
}

func (s *runtimeSession) initialize(open *entity.DidOpenMessage) {
	if !s.transition(entity.StateInitializing) {
		return
	}
	s.pending = append(s.pending, open)

	params := mapper.InitializeParams(s.ws, s.c.processID())
	s.async(func(ctx context.Context) func() {
		result, err := s.server.Initialize(ctx, params)
		return func() { s.initialized(result, err) }
	})
}

func (s *runtimeSession) initialized(result *protocol.InitializeResult, err error) {
	if err != nil {
		s.logger.Errorw("initialize handshake failed", zap.Error(err))
		s.beginClose(_reasonHandshakeFailed)
		return
	}

	var name string
	if result != nil && result.ServerInfo != nil {
		name = result.ServerInfo.Name
	}
	s.logger.Infow("analysis server initialized", "server", name)
	s.notified(protocol.MethodInitialized, s.server.Initialized(s.ctx))

	if !s.transition(entity.StateReady) {
		return
	}
	pending := s.pending
	s.pending = nil
	for _, msg := range pending {
		s.handle(msg)
	}
}

func (s *runtimeSession) handle(msg entity.ClientMessage) {
	switch m := msg.(type) {
	case *entity.DidOpenMessage:
		s.sync(s.doc.Open(m.Code))
	case *entity.DidChangeMessage:
		update, ok := s.doc.Change(m.Code)
		if !ok {
			s.logger.Debug("dropping change for a document that is not open")
			return
		}
		s.sync(update)
	case *entity.DidCloseMessage:
		if !s.doc.Close() {
			s.logger.Debug("dropping close for a document that is not open")
			return
		}
		s.notified(protocol.MethodTextDocumentDidClose, s.server.DidClose(s.ctx, mapper.DidCloseParams(s.doc.Path())))
	case *entity.HoverMessage:
		s.hover(m)
	case *entity.CompletionMessage:
		s.completion(m)
	case *entity.FormatMessage:
		s.format(m)
	}
}

func (s *runtimeSession) sync(update docsync.Sync) {
	if update.Kind == docsync.SyncOpen {
		err := s.server.DidOpen(s.ctx, mapper.DidOpenParams(s.doc.Path(), update.Version, update.Text))
		s.notified(protocol.MethodTextDocumentDidOpen, err)
		return
	}
	err := s.server.DidChange(s.ctx, mapper.DidChangeParams(s.doc.Path(), update.Version, update.Text))
	s.notified(protocol.MethodTextDocumentDidChange, err)
}

func (s *runtimeSession) hover(m *entity.HoverMessage) {
	if !s.doc.IsOpen() {
		s.send(mapper.HoverReply(m, nil))
		return
	}

	version := s.doc.Version()
	params := mapper.HoverParams(s.doc.Path(), m)
	s.async(func(ctx context.Context) func() {
		hover, err := s.server.Hover(ctx, params)
		return func() {
			if !s.usable(protocol.MethodTextDocumentHover, version, err) {
				hover = nil
			}
			s.send(mapper.HoverReply(m, hover))
		}
	})
}

func (s *runtimeSession) completion(m *entity.CompletionMessage) {
	if !s.doc.IsOpen() {
		s.send(mapper.CompletionReply(m, nil))
		return
	}

	version := s.doc.Version()
	params := mapper.CompletionParams(s.doc.Path(), m)
	s.async(func(ctx context.Context) func() {
		list, err := s.server.Completion(ctx, params)
		return func() {
			if !s.usable(protocol.MethodTextDocumentCompletion, version, err) {
				list = nil
			}
			s.send(mapper.CompletionReply(m, list))
		}
	})
}

func (s *runtimeSession) format(m *entity.FormatMessage) {
	s.send(mapper.FormatReply(s.c.formatter.Format(s.ctx, m.Code)))
}

// async runs call off the loop with the request timeout and posts the task it returns back onto the loop.
func (s *runtimeSession) async(call func(ctx context.Context) func()) {
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.c.requestTimeout)
		defer cancel()

		complete := call(ctx)
		if err := s.post(context.Background(), complete); err != nil {
			s.logger.Debugw("dropping result of a call", zap.Error(err))
		}
	}()
}

// usable reports whether a result for a request issued at version may be sent to the client.
func (s *runtimeSession) usable(method string, version int32, err error) bool {
	if err != nil {
		s.c.stats.Tagged(map[string]string{"method": method}).Counter("request_errors").Inc(1)
		s.logger.Warnw("analysis server request failed", "method", method, zap.Error(err))
		return false
	}
	if !s.doc.IsCurrent(version) {
		s.c.stats.Counter("stale_replies").Inc(1)
		s.logger.Debugw("discarding stale result", "method", method, "version", version, "current", s.doc.Version())
		return false
	}
	return true
}

func (s *runtimeSession) notified(method string, err error) {
	if err == nil {
		return
	}
	if bridgeerrors.IsChannelClosed(err) {
		s.logger.Debugw("notification after the analysis server went away", "method", method)
		return
	}
	s.logger.Warnw("notification failed", "method", method, zap.Error(err))
}

func (s *runtimeSession) send(v interface{}) {
	if err := s.c.clients.Send(s.ctx, s.id, v); err != nil {
		s.logger.Warnw("sending to client", zap.Error(err))
	}
}

// onDiagnostics runs on the analysis server's read loop. It queues the push and wakes the task loop.
func (s *runtimeSession) onDiagnostics(params *protocol.PublishDiagnosticsParams) {
	s.diagMu.Lock()
	s.diagQueue = append(s.diagQueue, params)
	s.diagMu.Unlock()

	select {
	case s.diagSignal <- struct{}{}:
	default:
	}
}

func (s *runtimeSession) flushDiagnostics() {
	s.diagMu.Lock()
	queue := s.diagQueue
	s.diagQueue = nil
	s.diagMu.Unlock()

	for _, params := range queue {
		if notification, ok := s.c.diagnostics.Forward(s.doc.Path(), params); ok {
			s.send(notification)
		}
	}
}

// beginClose starts teardown. Only the first call has any effect.
func (s *runtimeSession) beginClose(reason closeReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		s.logger.Infow("closing session", "reason", reason.tag)
		close(s.closing)
		go s.teardown()
	})
}

func (s *runtimeSession) teardown() {
	// A task blocked on a server that stopped reading keeps the loop busy until the server is killed.
	loopStuck := false
	select {
	case <-s.loopDone:
	case <-s.c.clock.After(s.c.loopDrainTimeout):
		loopStuck = true
		s.logger.Warnw("task loop did not drain, tearing down around it", "timeout", s.c.loopDrainTimeout)
	}
	s.cancel()
	s.transition(entity.StateClosing)

	ctx, cancel := context.WithTimeout(context.Background(), _teardownTimeout)
	defer cancel()

	var errs error
	// The document belongs to the loop while it runs.
	if !loopStuck && s.doc.Close() {
		if err := s.server.DidClose(ctx, mapper.DidCloseParams(s.doc.Path())); err != nil && !bridgeerrors.IsChannelClosed(err) {
			errs = multierr.Append(errs, fmt.Errorf("closing document: %w", err))
		}
	}
	if err := s.server.Terminate(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("terminating analysis server: %w", err))
	}
	if err := s.c.provisioner.Teardown(ctx, s.ws.Path); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("removing workspace: %w", err))
	}
	if err := s.c.clients.Close(ctx, s.id, s.reason.code, s.reason.text); err != nil {
		if _, ok := bridgeerrors.NotFoundUUID(err); !ok {
			errs = multierr.Append(errs, fmt.Errorf("closing client: %w", err))
		}
	}
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("task loop still running: %w", ctx.Err()))
	}
	s.calls.Wait()

	if errs != nil {
		s.logger.Warnw("session teardown finished with errors", zap.Error(errs))
	}

	s.transition(entity.StateClosed)
	if err := s.c.sessions.Delete(ctx, s.id); err != nil {
		s.logger.Warnw("forgetting session", zap.Error(err))
	}
	s.c.stats.Tagged(map[string]string{"reason": s.reason.tag}).Counter("closes").Inc(1)
	s.c.stats.Timer("duration").Record(s.c.clock.Now().Sub(s.createdAt))
	s.logger.Info("session closed")
	close(s.done)
}
