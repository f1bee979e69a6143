// Package bridge routes WebSocket connections to session bridges.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	controller "github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/bridge"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/websocketfx"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Handler is the connection manager that owns the mapping from connections to sessions.
type Handler interface {
	websocketfx.ConnectionManager
	// ConnectionCount returns the number of connections with a live router.
	ConnectionCount() int
}

type connectionManager struct {
	ctrl   controller.Controller
	logger *zap.SugaredLogger
	stats  tally.Scope

	mu      sync.Mutex
	routers map[uuid.UUID]*router
}

// New constructs the handler and registers it as the WebSocket module's connection manager.
func New(ctrl controller.Controller, wsmod websocketfx.WebSocketModule, logger *zap.SugaredLogger, stats tally.Scope) (Handler, error) {
	c := &connectionManager{
		ctrl:    ctrl,
		logger:  logger,
		stats:   stats.SubScope("connections"),
		routers: make(map[uuid.UUID]*router),
	}
	if err := wsmod.RegisterConnectionManager(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConnection starts a session for a new connection and returns a router that includes its UUID.
func (c *connectionManager) NewConnection(ctx context.Context, conn *websocket.Conn) (websocketfx.Router, error) {
	s, err := c.ctrl.InitSession(ctx, conn)
	if err != nil {
		c.stats.Counter("rejected").Inc(1)
		return nil, fmt.Errorf("error while creating new connection: %w", err)
	}

	r := &router{session: s, stats: c.stats}

	c.mu.Lock()
	c.routers[s.UUID()] = r
	c.stats.Gauge("active").Update(float64(len(c.routers)))
	c.mu.Unlock()
	return r, nil
}

// RemoveConnection tells the session that its client is gone.
func (c *connectionManager) RemoveConnection(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	r, ok := c.routers[id]
	delete(c.routers, id)
	c.stats.Gauge("active").Update(float64(len(c.routers)))
	c.mu.Unlock()

	if !ok {
		c.logger.Debugw("removing unknown connection", zap.Stringer("uuid", id))
		return
	}
	r.session.ClientClosed()
}

func (c *connectionManager) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.routers)
}

type router struct {
	session controller.Session
	stats   tally.Scope
}

// HandleFrame passes one client frame to the session.
func (r *router) HandleFrame(ctx context.Context, data []byte) error {
	r.stats.Counter("frames").Inc(1)
	return r.session.Receive(ctx, data)
}

func (r *router) UUID() uuid.UUID {
	return r.session.UUID()
}
