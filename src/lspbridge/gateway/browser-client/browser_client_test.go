package browserclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/factory"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/zap"
)

// connPair returns the server side and the browser side of a real WebSocket connection.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	browser, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { browser.Close() })

	select {
	case conn := <-serverConns:
		return conn, browser
	case <-time.After(time.Second):
		t.Fatal("server side was not accepted")
		return nil, nil
	}
}

func TestNew(t *testing.T) {
	provider, err := config.NewYAML(config.Source(strings.NewReader("websocket:\n  writeTimeoutMillis: 1500\n")))
	require.NoError(t, err)

	g, err := New(Params{Config: provider, Logger: zap.NewNop().Sugar(), Stats: tally.NoopScope})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, g.(*gateway).writeTimeout)
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	stats := tally.NewTestScope("testing", nil)
	g := NewWithConfig(Config{}, zap.NewNop().Sugar(), stats)
	server, browser := connPair(t)

	id := factory.UUID()
	require.NoError(t, g.RegisterClient(ctx, id, server))

	reply := &entity.HoverReply{
		Method:   entity.MethodHover,
		ID:       1,
		Position: entity.ReplyPosition{Line: 1, UTF16Index: 5},
	}
	require.NoError(t, g.Send(ctx, id, reply))

	messageType, data, err := browser.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.JSONEq(t, `{"method":"hover","id":1,"position":{"line":1,"utf16index":5},"value":null}`, string(data))
	assert.EqualValues(t, 1, stats.Snapshot().Counters()["testing.browser_client.messages_sent+"].Value())
	assert.EqualValues(t, 1, stats.Snapshot().Gauges()["testing.browser_client.clients+"].Value())
}

func TestSendUnknownSession(t *testing.T) {
	g := NewWithConfig(Config{}, zap.NewNop().Sugar(), tally.NoopScope)
	id := factory.UUID()

	err := g.Send(context.Background(), id, "x")
	got, ok := bridgeerrors.NotFoundUUID(err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	err = g.Close(context.Background(), id, CloseNormal, "")
	_, ok = bridgeerrors.NotFoundUUID(err)
	assert.True(t, ok)
}

func TestRegisterClient(t *testing.T) {
	ctx := context.Background()
	g := NewWithConfig(Config{}, zap.NewNop().Sugar(), tally.NoopScope)
	server, _ := connPair(t)
	id := factory.UUID()

	assert.Error(t, g.RegisterClient(ctx, id, nil))
	require.NoError(t, g.RegisterClient(ctx, id, server))
	assert.Error(t, g.RegisterClient(ctx, id, server))

	require.NoError(t, g.DeregisterClient(ctx, id))
	require.NoError(t, g.DeregisterClient(ctx, id))
	require.NoError(t, g.RegisterClient(ctx, id, server))
}

func TestClose(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{name: "client ended", code: CloseNormal},
		{name: "server failure", code: CloseInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			stats := tally.NewTestScope("testing", nil)
			g := NewWithConfig(Config{}, zap.NewNop().Sugar(), stats)
			server, browser := connPair(t)

			id := factory.UUID()
			require.NoError(t, g.RegisterClient(ctx, id, server))
			require.NoError(t, g.Close(ctx, id, tt.code, "session ended"))

			_, _, err := browser.ReadMessage()
			var closeErr *websocket.CloseError
			require.True(t, errors.As(err, &closeErr), "got %v", err)
			assert.Equal(t, tt.code, closeErr.Code)
			assert.Equal(t, "session ended", closeErr.Text)

			// The session is forgotten once closed.
			_, ok := bridgeerrors.NotFoundUUID(g.Send(ctx, id, "late"))
			assert.True(t, ok)
			assert.Len(t, stats.Snapshot().Counters(), 1)
		})
	}
}

func TestConcurrentSends(t *testing.T) {
	ctx := context.Background()
	g := NewWithConfig(Config{}, zap.NewNop().Sugar(), tally.NoopScope)
	server, browser := connPair(t)
	id := factory.UUID()
	require.NoError(t, g.RegisterClient(ctx, id, server))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, g.Send(ctx, id, &entity.FormatReply{Method: entity.MethodFormat, Value: strings.Repeat("x", i)}))
		}(i)
	}

	for i := 0; i < n; i++ {
		_, data, err := browser.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(data), `"method":"format"`)
	}
	wg.Wait()
}
