// Package browserclient sends messages to the browser clients connected over WebSocket.
package browserclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKey = "websocket"
	_nameKey   = "browser_client"

	_errSendToClient = "sending %s to browser client: %w"

	_defaultWriteTimeout = 10 * time.Second
)

// Close codes used when a session ends.
const (
	// CloseNormal is sent when the client ended the session.
	CloseNormal = websocket.CloseNormalClosure
	// CloseGoingAway is sent when the service ends a healthy session, for example at shutdown.
	CloseGoingAway = websocket.CloseGoingAway
	// CloseInternalError is sent when the session ended because of a server-side failure.
	CloseInternalError = websocket.CloseInternalServerErr
)

// Conn is the part of *websocket.Conn used to talk to a client.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Gateway is used to send outbound messages to browser clients, keyed by session.
type Gateway interface {
	// RegisterClient registers the connection of a new session.
	RegisterClient(ctx context.Context, id uuid.UUID, conn Conn) error
	// DeregisterClient forgets a session's connection without closing it.
	DeregisterClient(ctx context.Context, id uuid.UUID) error

	// Send writes v as a JSON text message to the session's client.
	Send(ctx context.Context, id uuid.UUID, v interface{}) error
	// Close sends a close frame with the given code, closes the connection and deregisters it.
	Close(ctx context.Context, id uuid.UUID, code int, reason string) error
}

// Config holds the part of the websocket section used by the gateway.
type Config struct {
	WriteTimeoutMillis int `yaml:"writeTimeoutMillis"`
}

// Params are inbound parameters to initialize the gateway.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type client struct {
	conn Conn
	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex
}

type gateway struct {
	clients      map[uuid.UUID]*client
	clientsMu    sync.Mutex
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
	stats        tally.Scope
}

// New returns a Gateway for sending messages to browser clients.
func New(p Params) (Gateway, error) {
	// The rest of the section belongs to the inbound.
	var cfg Config
	if err := p.Config.Get(_configKey + ".writeTimeoutMillis").Populate(&cfg.WriteTimeoutMillis); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey+".writeTimeoutMillis", err)
	}
	return NewWithConfig(cfg, p.Logger, p.Stats), nil
}

// NewWithConfig returns a Gateway for an explicit configuration.
func NewWithConfig(cfg Config, logger *zap.SugaredLogger, stats tally.Scope) Gateway {
	writeTimeout := time.Duration(cfg.WriteTimeoutMillis) * time.Millisecond
	if writeTimeout <= 0 {
		writeTimeout = _defaultWriteTimeout
	}
	return &gateway{
		clients:      make(map[uuid.UUID]*client),
		writeTimeout: writeTimeout,
		logger:       logger.With("gateway", _nameKey),
		stats:        stats.SubScope(_nameKey),
	}
}

func (g *gateway) RegisterClient(ctx context.Context, id uuid.UUID, conn Conn) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	if conn == nil {
		return errors.New("can't register nil connection")
	}
	if _, ok := g.clients[id]; ok {
		return fmt.Errorf("client already registered for session %s", id)
	}
	g.clients[id] = &client{conn: conn}
	g.stats.Gauge("clients").Update(float64(len(g.clients)))
	return nil
}

func (g *gateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	delete(g.clients, id)
	g.stats.Gauge("clients").Update(float64(len(g.clients)))
	return nil
}

func (g *gateway) Send(ctx context.Context, id uuid.UUID, v interface{}) error {
	c, err := g.client(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf(_errSendToClient, "message", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(g.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf(_errSendToClient, "message", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		g.stats.Counter("send_failures").Inc(1)
		return fmt.Errorf(_errSendToClient, "message", err)
	}
	g.stats.Counter("messages_sent").Inc(1)
	return nil
}

func (g *gateway) Close(ctx context.Context, id uuid.UUID, code int, reason string) error {
	c, err := g.client(id)
	if err != nil {
		return err
	}
	defer g.DeregisterClient(ctx, id)

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.writeTimeout)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		g.logger.Debugw("close frame not delivered", "session", id.String(), zap.Error(err))
	}
	g.stats.Tagged(map[string]string{"code": strconv.Itoa(code)}).Counter("closes").Inc(1)

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf(_errSendToClient, "close", err)
	}
	return nil
}

func (g *gateway) client(id uuid.UUID) (*client, error) {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	c, ok := g.clients[id]
	if !ok {
		return nil, &bridgeerrors.UUIDNotFoundError{UUID: id}
	}
	return c, nil
}
