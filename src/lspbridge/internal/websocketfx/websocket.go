// Package websocketfx serves browser clients over WebSocket, next to the service's health routes.
package websocketfx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKey = "websocket"
	_nameKey   = "websocket"

	_healthBody = `{"status":"pass"}`
)

// Module is an fx module to serve WebSocket clients.
var Module = fx.Provide(New)

// WebSocketModule represents a module to manage WebSocket connections.
type WebSocketModule interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	// ServeConn reads frames from an upgraded connection until it fails or is closed.
	ServeConn(ctx context.Context, conn *websocket.Conn) error
	RegisterConnectionManager(connectionManager ConnectionManager) error
	// Handler returns the HTTP routes of the module.
	Handler() http.Handler
}

// Router receives the text frames of a single connection.
type Router interface {
	HandleFrame(ctx context.Context, data []byte) error
	UUID() uuid.UUID
}

// ConnectionManager will manage each active connection and its corresponding Router throughout the lifecycle of a connection.
type ConnectionManager interface {
	// NewConnection is called once per upgraded connection. On error the connection must already be closed.
	NewConnection(ctx context.Context, conn *websocket.Conn) (router Router, err error)
	RemoveConnection(ctx context.Context, id uuid.UUID)
}

// Config is the websocket section of the service configuration.
type Config struct {
	Address        string   `yaml:"address"`
	Path           string   `yaml:"path"`
	HealthPaths    []string `yaml:"healthPaths"`
	ReadLimitBytes int64    `yaml:"readLimitBytes"`
	// WriteTimeoutMillis bounds the upgrade handshake. Frame writes use the same limit in the browser-client gateway.
	WriteTimeoutMillis int `yaml:"writeTimeoutMillis"`
}

// Params define values to be used by the WebSocket module.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
}

type module struct {
	cfg Config

	connectionMgrMu sync.RWMutex
	connectionMgr   ConnectionManager

	upgrader websocket.Upgrader
	server   *http.Server
	ln       net.Listener
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// New creates a new module that serves WebSocket clients on the configured address and path.
func New(p Params) (WebSocketModule, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	cfg, err := processConfig(p.Config)
	if err != nil {
		return nil, err
	}

	m := newModule(cfg, p.Logger, p.Stats)
	p.Lifecycle.Append(fx.Hook{
		OnStart: m.OnStart,
		OnStop:  m.OnStop,
	})
	return m, nil
}

func newModule(cfg Config, logger *zap.SugaredLogger, stats tally.Scope) *module {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if stats == nil {
		stats = tally.NoopScope
	}
	m := &module{
		cfg:    cfg,
		logger: logger.With("inbound", _nameKey),
		stats:  stats.SubScope(_nameKey),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.WriteTimeoutMillis) * time.Millisecond,
			// Browser clients are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	m.server = &http.Server{Handler: m.routes()}
	return m
}

func (m *module) routes() http.Handler {
	r := chi.NewRouter()
	for _, path := range m.cfg.HealthPaths {
		r.Get(path, health)
	}
	if m.cfg.Path != "" {
		r.Get(m.cfg.Path, m.upgrade)
	}
	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(_healthBody))
}

func (m *module) Handler() http.Handler {
	return m.server.Handler
}

// OnStart will begin listening on the configured address and serving connections.
func (m *module) OnStart(ctx context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}

	go m.start()
	return nil
}

// OnStop stops accepting connections. Upgraded connections are closed by their sessions.
func (m *module) OnStop(ctx context.Context) error {
	if m.ln == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *module) upgrade(w http.ResponseWriter, r *http.Request) {
	if m.connectionManager() == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		m.stats.Counter("upgrade_failures").Inc(1)
		m.logger.Debugw("websocket upgrade failed", zap.Error(err))
		return
	}
	if m.cfg.ReadLimitBytes > 0 {
		conn.SetReadLimit(m.cfg.ReadLimitBytes)
	}

	if err := m.ServeConn(r.Context(), conn); err != nil {
		m.logger.Debugw("connection ended", zap.Error(err))
	}
}

// ServeConn is called for each upgraded connection. Frames are passed to the connection's router in order.
func (m *module) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	connectionMgr := m.connectionManager()
	if connectionMgr == nil {
		m.logger.Errorf("cannot serve connection, no connection manager set")
		conn.Close()
		return errors.New("cannot serve connection, no connection manager set")
	}

	router, err := connectionMgr.NewConnection(ctx, conn)
	if err != nil {
		return err
	}
	m.stats.Counter("connections").Inc(1)
	m.logger.Infow("client connected", zap.Stringer("uuid", router.UUID()))

	var readErr error
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if messageType != websocket.TextMessage {
			m.logger.Debugw("ignoring non-text frame", zap.Stringer("uuid", router.UUID()), "type", messageType)
			continue
		}
		m.stats.Counter("frames").Inc(1)
		if err := router.HandleFrame(ctx, data); err != nil {
			m.logger.Debugw("frame not handled", zap.Stringer("uuid", router.UUID()), zap.Error(err))
		}
	}

	// Cleanup after connection.
	connectionMgr.RemoveConnection(ctx, router.UUID())
	m.logger.Infow("client disconnected", zap.Stringer("uuid", router.UUID()))

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	return readErr
}

// RegisterConnectionManager sets the connection manager, which keeps track of current active connections and provides a Router implementation.
func (m *module) RegisterConnectionManager(connectionMgr ConnectionManager) error {
	m.connectionMgrMu.Lock()
	defer m.connectionMgrMu.Unlock()

	if m.connectionMgr != nil {
		return errors.New("cannot register a duplicate connection manager")
	}
	m.connectionMgr = connectionMgr
	return nil
}

func (m *module) connectionManager() ConnectionManager {
	m.connectionMgrMu.RLock()
	defer m.connectionMgrMu.RUnlock()
	return m.connectionMgr
}

// setup should be called after creation of a new module to open its listener.
func (m *module) setup() error {
	if m.cfg.Address == "" {
		return errors.New("setup called before address is set")
	}

	ln, err := net.Listen("tcp", m.cfg.Address)
	if err != nil {
		return err
	}
	m.ln = ln
	return nil
}

func (m *module) start() {
	m.logger.Infow("started WebSocket inbound", zap.String("address", m.ln.Addr().String()), zap.String("path", m.cfg.Path))
	if err := m.server.Serve(m.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Errorw("WebSocket inbound stopped", zap.Error(err))
	}
}

// processConfig will parse the configuration for any values required by this module.
func processConfig(provider config.Provider) (Config, error) {
	var cfg Config
	if err := provider.Get(_configKey).Populate(&cfg); err != nil {
		// incorrectly formatted config
		return Config{}, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	if cfg.Address == "" {
		return Config{}, fmt.Errorf("missing field %q in config", _configKey+".address")
	}
	if cfg.Path == "" {
		return Config{}, fmt.Errorf("missing field %q in config", _configKey+".path")
	}
	return cfg, nil
}
